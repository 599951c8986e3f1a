package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dexhound/dexhound/internal/utils"
	"github.com/dexhound/dexhound/pkg/annotate"
	"github.com/dexhound/dexhound/pkg/bloodhound"
	"github.com/dexhound/dexhound/pkg/dexcom"
	"github.com/dexhound/dexhound/pkg/offsets"
	"github.com/dexhound/dexhound/pkg/storage"
	"github.com/dexhound/dexhound/pkg/tidepool"
	"github.com/dexhound/dexhound/pkg/timezone"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// convertCmd implements: dexhound convert <merged.csv>
var convertCmd = &cobra.Command{
	Use:   "convert <merged.csv>",
	Short: "Resolve display clock offsets and write Tidepool data",
	Long: `Reads a merged terse export (see 'dexhound merge --terse'), walks it from the
most recent reading back, asks for the timezone at every offset boundary it
detects and writes the readings as Tidepool JSON.

Boundaries are remembered in the change log, so later runs over the same
history only ask about what is new.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runConvert(ctx, cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringP("timezone", "z", "", "Answer every boundary with this timezone instead of asking")
	convertCmd.Flags().String("answers", "", "YAML file with scripted answers (list under 'answers', optional 'fallback')")
	convertCmd.Flags().StringP("changelog", "c", "", "Offset change log to replay and update (default: offset-changes.json)")
	convertCmd.Flags().String("summary", "", "Also write a human-readable summary of the change log to this file")
	convertCmd.Flags().StringP("output", "o", "", "Tidepool JSON output file (default: stdout)")
	convertCmd.Flags().Bool("db", false, "Record boundaries and run stats in the history database and print changes")
	convertCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/dexhound/dexhound.sqlite)")
	convertCmd.Flags().Bool("strict", false, "Fail when any input row is rejected")
	convertCmd.Flags().Int("tolerance", 0, "Ignore hour changes whose clock difference moved by at most this many seconds")

	viper.BindPFlag("timezone", convertCmd.Flags().Lookup("timezone"))
	viper.BindPFlag("answers", convertCmd.Flags().Lookup("answers"))
	viper.BindPFlag("summary", convertCmd.Flags().Lookup("summary"))
	viper.BindPFlag("output", convertCmd.Flags().Lookup("output"))
}

func runConvert(ctx context.Context, cmd *cobra.Command, input string) error {
	strict, _ := cmd.Flags().GetBool("strict")
	tolerance, _ := cmd.Flags().GetInt("tolerance")
	useDB, _ := cmd.Flags().GetBool("db")
	changelog := setting(cmd, "changelog", "changelog")
	startedAt := time.Now()

	f, err := os.Open(input)
	if err != nil {
		return err
	}
	store, ingest, err := dexcom.ParseTerse(f)
	f.Close()
	if err != nil {
		return err
	}
	for _, rej := range ingest.Rejected {
		utils.Log.Warnf("[convert] %s: rejected %v", input, rej)
	}
	if strict && len(ingest.Rejected) > 0 {
		return fmt.Errorf("%d of %d rows rejected in %s", len(ingest.Rejected), ingest.Rows, input)
	}
	utils.Log.Infof("[convert] %d readings from %d rows (%d sensor, %d calibration)", store.Len(), ingest.Rows, len(store.Sensors()), len(store.Calibrations()))

	log := offsets.LoadFile(changelog)
	utils.Log.Debugf("[convert] replaying %d boundaries from %s", log.Len(), changelog)

	prompter, err := buildPrompter()
	if err != nil {
		return err
	}

	var opts []bloodhound.Option
	if tolerance > 0 {
		opts = append(opts, bloodhound.WithToleranceSeconds(tolerance))
	}
	readings := store.Readings()
	result, err := bloodhound.NewEngine(log, timezone.NewResolver(prompter), opts...).Run(ctx, readings)
	if err != nil {
		return fmt.Errorf("offset inference aborted, nothing was written: %w", err)
	}
	annotated, skipped := annotate.All(readings)
	utils.Log.Infof("[convert] %d readings resolved, %d unresolved, %d new boundaries", annotated, skipped, len(result.Added))
	for reason, n := range result.Reasons {
		utils.Log.Debugf("[convert] %d boundaries for %s", n, reason)
	}

	// Everything is built in memory before anything touches disk.
	changelogData, err := log.Marshal()
	if err != nil {
		return err
	}
	var summary bytes.Buffer
	if err := log.WriteSummary(&summary); err != nil {
		return err
	}
	var data bytes.Buffer
	if err := tidepool.Write(&data, tidepool.NewConverter().Data(readings)); err != nil {
		return err
	}

	lock, err := utils.NewCommitLock(changelog)
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	if err := utils.WriteFileAtomic(changelog, changelogData, 0o644); err != nil {
		return err
	}
	if path := viper.GetString("summary"); path != "" {
		if err := utils.WriteFileAtomic(path, summary.Bytes(), 0o644); err != nil {
			return err
		}
	}
	if path := viper.GetString("output"); path != "" {
		if err := utils.WriteFileAtomic(path, data.Bytes(), 0o644); err != nil {
			return err
		}
		utils.Log.Infof("[convert] wrote %d records to %s", len(readings), path)
	} else if _, err := os.Stdout.Write(data.Bytes()); err != nil {
		return err
	}

	if useDB {
		if err := recordHistory(ctx, cmd, log, storage.Run{
			StartedAt:  startedAt,
			Input:      input,
			Readings:   len(readings),
			Resolved:   result.Resolved,
			Unresolved: result.Unresolved,
			Rejected:   len(ingest.Rejected),
			Boundaries: log.Len(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func buildPrompter() (timezone.Prompter, error) {
	if path := viper.GetString("answers"); path != "" {
		return timezone.LoadScript(path)
	}
	if tz := viper.GetString("timezone"); tz != "" {
		return timezone.StaticPrompter{Timezone: tz}, nil
	}
	return timezone.NewTerminalPrompter(os.Stdin, os.Stderr, ""), nil
}

func recordHistory(ctx context.Context, cmd *cobra.Command, log *offsets.Log, run storage.Run) error {
	db, _, err := openDB(cmd, false)
	if err != nil {
		return err
	}
	defer db.Close()

	changes, err := db.UpsertBoundaries(ctx, storage.BuildBoundaries(log.Records()))
	if err != nil {
		return err
	}
	if _, err := db.RecordRun(ctx, run); err != nil {
		return err
	}
	for _, c := range changes {
		printChange(c)
	}
	return nil
}
