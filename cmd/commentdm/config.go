package main

import (
	"fmt"
	"os"

	"commentdm/internal/config"
)

var (
	configFile string
	envFile    string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", getEnvOrDefault("COMMENTDM_CONFIG_FILE", ""), "Path to commentdm.yaml (default: search ./, ./config/, /etc/commentdm/)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", getEnvOrDefault("COMMENTDM_ENV_FILE", ".env"), "Path to a .env file (ignored if missing)")
}

// loadConfig loads the layered configuration shared by all subcommands
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
