package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"commentdm/internal/history"
	"commentdm/internal/store"

	"github.com/spf13/cobra"
)

const defaultHistoryLimit = 50

var (
	historyDBPath string
	historyType   string
	historyLimit  int
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived activity",
	Long: `Show entries from the SQLite activity archive, newest first.

The archive keeps every activity entry, including those that have dropped out
of the admin page's 200-entry window. It is only written when db_path is set.

Example:
  commentdm history --type error --limit 20`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBPath, "db", "", "Path to SQLite activity archive (default from config)")
	historyCmd.Flags().StringVarP(&historyType, "type", "t", "", "Only show entries of this type (sent, skip, error, config)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", defaultHistoryLimit, "Maximum number of entries")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print entries as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = historyDBPath
	}
	if cfg.DBPath == "" {
		return fmt.Errorf("activity archive is disabled: set db_path or pass --db")
	}

	switch store.Kind(historyType) {
	case "", store.KindSent, store.KindSkip, store.KindError, store.KindConfig:
	default:
		return fmt.Errorf("unknown type %q (expected sent, skip, error or config)", historyType)
	}

	hist, err := history.NewHistory(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open activity archive: %w", err)
	}
	defer hist.Close()

	ctx := context.Background()
	records, err := hist.Recent(ctx, historyType, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to query activity: %w", err)
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	counts, err := hist.CountByType(ctx)
	if err != nil {
		return fmt.Errorf("failed to count activity: %w", err)
	}

	fmt.Printf("Archive: %s\n", cfg.DBPath)
	for _, c := range counts {
		fmt.Printf("  %-7s %d\n", c.Type, c.Count)
	}
	fmt.Println()

	if len(records) == 0 {
		fmt.Println("No matching entries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tMESSAGE\tDETAILS")
	for _, r := range records {
		details := ""
		if len(r.Extra) > 0 {
			data, _ := json.Marshal(r.Extra)
			details = string(data)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Time.Local().Format("2006-01-02 15:04:05"), r.Type, r.Msg, details)
	}
	return w.Flush()
}
