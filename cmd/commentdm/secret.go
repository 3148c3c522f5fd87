package main

import (
	"fmt"

	"commentdm/internal/security"

	"github.com/spf13/cobra"
)

var genSecretCmd = &cobra.Command{
	Use:   "gen-secret",
	Short: "Generate a random secret",
	Long: `Print a random 32-character secret suitable for VERIFY_TOKEN or
ADMIN_PASSWORD.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := security.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Println(secret)
		return nil
	},
}
