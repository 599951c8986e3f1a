package annotate

import (
	"testing"

	"github.com/dexhound/dexhound/pkg/dexcom"
)

func resolved(t *testing.T, display string, offset int, tz string) dexcom.Reading {
	t.Helper()
	r, err := dexcom.NewReading("2014-01-10 09:00:00", display, "120", dexcom.G4Platinum, "SM1", dexcom.Sensor)
	if err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	r.Resolution = dexcom.Resolution{OffsetHours: offset, Timezone: tz, Resolved: true}
	return r
}

func TestAnnotate(t *testing.T) {
	tests := []struct {
		name     string
		display  string
		offset   int
		tz       string
		local    string
		absolute string
	}{
		{"eastern winter", "2014-01-10 05:00:00", -5, "US/Eastern", "2014-01-10T05:00:00-05:00", "2014-01-10T10:00:00Z"},
		{"eastern summer", "2014-07-10 05:00:00", -4, "US/Eastern", "2014-07-10T05:00:00-04:00", "2014-07-10T09:00:00Z"},
		{"east of utc", "2014-01-10 05:00:00", 1, "Europe/Berlin", "2014-01-10T05:00:00+01:00", "2014-01-10T04:00:00Z"},
		{"utc", "2014-01-10 05:00:00", 0, "UTC", "2014-01-10T05:00:00Z", "2014-01-10T05:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resolved(t, tt.display, tt.offset, tt.tz)
			if !Annotate(&r) {
				t.Fatal("expected reading to be annotated")
			}
			if r.LocalDisplayTime != tt.local {
				t.Errorf("expected local %s, got %s", tt.local, r.LocalDisplayTime)
			}
			if r.AbsoluteTime != tt.absolute {
				t.Errorf("expected absolute %s, got %s", tt.absolute, r.AbsoluteTime)
			}
		})
	}
}

func TestAnnotate_Idempotent(t *testing.T) {
	r := resolved(t, "2014-01-10 05:00:00", -5, "US/Eastern")
	Annotate(&r)
	first := r
	Annotate(&r)
	if r.LocalDisplayTime != first.LocalDisplayTime || r.AbsoluteTime != first.AbsoluteTime {
		t.Fatalf("second pass changed the reading: %q/%q vs %q/%q", r.LocalDisplayTime, r.AbsoluteTime, first.LocalDisplayTime, first.AbsoluteTime)
	}
}

func TestAll_SkipsUnresolved(t *testing.T) {
	unresolved := resolved(t, "2014-01-10 05:00:00", 0, "")
	unresolved.Resolution = dexcom.Resolution{}
	unresolved.LocalDisplayTime = "stale"

	readings := []dexcom.Reading{resolved(t, "2014-01-10 05:00:00", -5, "US/Eastern"), unresolved}
	annotated, skipped := All(readings)
	if annotated != 1 || skipped != 1 {
		t.Fatalf("expected 1 annotated and 1 skipped, got %d/%d", annotated, skipped)
	}
	if readings[1].LocalDisplayTime != "" || readings[1].AbsoluteTime != "" {
		t.Fatalf("unresolved reading must carry empty times, got %#v", readings[1])
	}
}
