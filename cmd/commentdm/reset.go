package main

import (
	"fmt"
	"log/slog"

	"commentdm/internal/history"
	"commentdm/internal/store"

	"github.com/spf13/cobra"
)

var (
	resetStatePath string
	resetDBPath    string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the list of users already messaged",
	Long: `Clear every recorded (post, commenter) pair in the state file so all commenters
can receive the reply again. This is the offline equivalent of the reset button
on the admin page.

Stop the server first: a running server keeps its own copy of the state and
overwrites the file on its next change.

Example:
  commentdm reset --state /var/lib/commentdm/data.json`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetStatePath, "state", "", "Path to JSON state file (default from config)")
	resetCmd.Flags().StringVar(&resetDBPath, "db", "", "Path to SQLite activity archive (default from config)")
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("state") {
		cfg.StatePath = resetStatePath
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = resetDBPath
	}

	var archive store.Archive
	if cfg.DBPath != "" {
		hist, err := history.NewHistory(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open activity archive: %w", err)
		}
		defer hist.Close()
		archive = hist
	}

	st, err := store.Open(cfg.StatePath, archive, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load state from %s: %w", cfg.StatePath, err)
	}

	cleared, err := st.ResetSent()
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	fmt.Printf("Reset successful!\n")
	fmt.Printf("  State file: %s\n", cfg.StatePath)
	fmt.Printf("  Cleared:    %d entries\n", cleared)

	return nil
}
