package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dexhound/dexhound/pkg/offsets"
	"github.com/dexhound/dexhound/pkg/storage"
	"github.com/spf13/cobra"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show the offset boundaries on record (or recent history changes with --db)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		useDB, _ := cmd.Flags().GetBool("db")
		limit, _ := cmd.Flags().GetInt("limit")

		if !useDB {
			changelog := setting(cmd, "changelog", "changelog")
			if _, err := os.Stat(changelog); err != nil {
				return fmt.Errorf("change log not found: %s", changelog)
			}
			log := offsets.LoadFile(changelog)
			if log.Len() == 0 {
				fmt.Println("No boundaries on record.")
				return nil
			}
			return log.WriteSummary(os.Stdout)
		}

		db, _, err := openDB(cmd, true)
		if err != nil {
			return err
		}
		defer db.Close()
		changes, err := db.ListRecentChanges(context.Background(), limit)
		if err != nil {
			return err
		}
		for _, c := range changes {
			printChange(c)
		}
		return nil
	},
}

func printChange(c storage.Change) {
	ts := c.OccurredAt.Format("2006-01-02 15:04:05")
	at := c.InternalTime
	if at == "" {
		at = "(most recent)"
	}
	fmt.Printf("%s  %-7s  %-19s  UTC%+03d:00  %s  %s\n", ts, c.ChangeType, at, c.OffsetHours, c.Timezone, c.Reason)
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().StringP("changelog", "c", "", "Offset change log to read (default: offset-changes.json)")
	changesCmd.Flags().Bool("db", false, "Show recent changes from the history database instead")
	changesCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/dexhound/dexhound.sqlite)")
	changesCmd.Flags().Int("limit", 50, "Number of recent changes to show (with --db)")
}
