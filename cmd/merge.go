package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dexhound/dexhound/internal/utils"
	"github.com/dexhound/dexhound/pkg/merge"
	"github.com/spf13/cobra"
)

// mergeCmd implements: dexhound merge
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge a set of Dexcom Studio exports into one deduplicated file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'dexhound merge --help'", args[0])
		}

		comma, _ := cmd.Flags().GetBool("csv")
		gen, _ := cmd.Flags().GetBool("device-gen")
		serial, _ := cmd.Flags().GetBool("serial-number")
		terse, _ := cmd.Flags().GetBool("terse")
		dir, _ := cmd.Flags().GetString("path")
		output, _ := cmd.Flags().GetString("output-file")

		files, err := merge.FindExports(dir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("couldn't find any Dexcom exports in %q; try --path with the directory where you've stored them", dir)
		}

		utils.Log.Info("[merge] merging the following files:")
		for _, f := range files {
			utils.Log.Infof("[merge]   %s", f)
		}

		set := merge.NewSet(merge.Options{Comma: comma, Generation: gen, Serial: serial, Terse: terse})
		var total, duplicates int
		for _, f := range files {
			stats, err := set.AddFile(f)
			if err != nil {
				return err
			}
			total += stats.Rows
			duplicates += stats.Duplicates
		}

		var buf bytes.Buffer
		n, err := set.Write(&buf)
		if err != nil {
			return err
		}
		if err := utils.WriteFileAtomic(output, buf.Bytes(), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%d non-duplicate records written to %s (%d rows read, %d duplicates).\n", n, output, total, duplicates)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().BoolP("csv", "c", false, "Comma- (instead of tab-)delimited output")
	mergeCmd.Flags().BoolP("device-gen", "d", false, "Include a column for device generation information")
	mergeCmd.Flags().BoolP("serial-number", "s", false, "Include a column for device serial number (implies --device-gen)")
	mergeCmd.Flags().BoolP("terse", "t", false, "Output only glucose and meter columns")
	mergeCmd.Flags().StringP("path", "p", ".", "Directory where your Dexcom Studio exports are stored")
	mergeCmd.Flags().StringP("output-file", "o", "merged-dexcom.csv", "Path and/or name of output file")
}
