package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

const terseInput = `GlucoseInternalTime,GlucoseDisplayTime,GlucoseValue,MeterInternalTime,MeterDisplayTime,MeterValue,DeviceGeneration,SerialNumber
2014-01-10 08:55:00,2014-01-10 04:55:00,115,,,,G4Platinum,SM2
2014-01-10 09:00:00,2014-01-10 05:00:00,120,2014-01-10 09:00:00,2014-01-10 05:00:00,118,G4Platinum,SM2
2014-01-09 09:00:00,2014-01-09 05:00:00,Low,,,,G4Platinum,SM1
2014-01-09 09:05:00,2014-01-09 05:05:00,999,,,,G4Platinum,SM1
`

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	input := filepath.Join(dir, "merged.csv")
	if err := os.WriteFile(input, []byte(terseInput), 0o644); err != nil {
		t.Fatal(err)
	}
	changelog := filepath.Join(dir, "offset-changes.json")
	summary := filepath.Join(dir, "offset-changes.txt")
	output := filepath.Join(dir, "tidepool.json")

	rootCmd.SetArgs([]string{"convert", input,
		"--timezone", "US/Eastern",
		"--changelog", changelog,
		"--summary", summary,
		"--output", output,
		"--loglevel", "error",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("convert failed: %v", err)
	}

	log, err := os.ReadFile(changelog)
	if err != nil {
		t.Fatal(err)
	}
	records := gjson.ParseBytes(log).Array()
	if len(records) != 2 {
		t.Fatalf("expected a bootstrap and an identity change, got %s", log)
	}
	if records[0].Get("effective_at.internal_time").String() != "" || records[1].Get("reason").String() != "device-identity-change" {
		t.Fatalf("unexpected change log %s", log)
	}
	if records[1].Get("display_offset").Int() != -5 {
		t.Fatalf("expected offset -5, got %s", records[1].Get("display_offset").Raw)
	}

	text, err := os.ReadFile(summary)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(text), "device-identity-change") {
		t.Fatalf("summary misses the identity change:\n%s", text)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	doc := gjson.ParseBytes(data)
	// four readings survive: the 999 row is rejected
	if n := len(doc.Array()); n != 4 {
		t.Fatalf("expected 4 data, got %d", n)
	}
	first := doc.Get("0")
	if first.Get("type").String() != "cbg" || first.Get("time").String() != "2014-01-10T10:00:00Z" {
		t.Fatalf("unexpected first datum %s", first.Raw)
	}
	if doc.Get("1.type").String() != "smbg" {
		t.Fatalf("expected the calibration second, got %s", doc.Get("1").Raw)
	}
	if doc.Get("3.annotations.0.code").String() != "bg/out-of-range" {
		t.Fatalf("expected the Low reading to be annotated, got %s", doc.Get("3").Raw)
	}

	if _, err := os.Stat(changelog + ".lock"); err != nil {
		t.Fatalf("expected the commit lock file: %v", err)
	}
}
