package dexcom

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestParseValue_NumericRange(t *testing.T) {
	for v := MinValue; v <= MaxValue; v++ {
		got, oor, err := ParseValue(strconv.Itoa(v))
		if err != nil {
			t.Fatalf("value %d: unexpected error: %v", v, err)
		}
		if got != v {
			t.Fatalf("value %d: got %d", v, got)
		}
		if oor != nil {
			t.Fatalf("value %d: unexpected annotation %+v", v, oor)
		}
	}
}

func TestParseValue_Sentinels(t *testing.T) {
	tests := []struct {
		raw       string
		value     int
		label     string
		threshold int
	}{
		{"Low", 39, "low", 40},
		{"High", 401, "high", 400},
	}

	for _, tt := range tests {
		got, oor, err := ParseValue(tt.raw)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.raw, err)
		}
		if got != tt.value {
			t.Errorf("%s: expected %d, got %d", tt.raw, tt.value, got)
		}
		if oor == nil || oor.Value != tt.label || oor.Threshold != tt.threshold {
			t.Errorf("%s: unexpected annotation %+v", tt.raw, oor)
		}
	}
}

func TestParseValue_Rejected(t *testing.T) {
	tests := []struct {
		raw  string
		want error
	}{
		{"19", ErrValueOutOfRange},
		{"601", ErrValueOutOfRange},
		{"-5", ErrValueOutOfRange},
		{"abc", ErrMalformedValue},
		{"", ErrMalformedValue},
		{"low", ErrMalformedValue},
	}

	for _, tt := range tests {
		_, _, err := ParseValue(tt.raw)
		if !errors.Is(err, tt.want) {
			t.Errorf("%q: expected %v, got %v", tt.raw, tt.want, err)
		}
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2014, 1, 10, 9, 0, 0, 0, time.UTC)

	for _, s := range []string{"2014-01-10 09:00:00", "2014-01-10 09:00:00.123", " 2014-01-10 09:00:00 "} {
		got, err := ParseTime(s)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", s, err)
		}
		if !got.Truncate(time.Second).Equal(want) {
			t.Errorf("%q: expected %v, got %v", s, want, got)
		}
	}
}

func TestParseTime_Malformed(t *testing.T) {
	for _, s := range []string{"", "2014/01/10 09:00:00", "yesterday", "2014-01-10T09:00:00Z"} {
		if _, err := ParseTime(s); !errors.Is(err, ErrMalformedTimestamp) {
			t.Errorf("%q: expected ErrMalformedTimestamp, got %v", s, err)
		}
	}
}

func TestGenerationFromSerial(t *testing.T) {
	tests := map[string]Generation{
		"SM12345678": G4Platinum,
		"4123456":    SevenPlus,
		"":           Unknown,
		"XY123":      Unknown,
	}
	for serial, want := range tests {
		if got := GenerationFromSerial(serial); got != want {
			t.Errorf("%q: expected %s, got %s", serial, want, got)
		}
	}
}

func TestParseTerse(t *testing.T) {
	input := strings.Join([]string{
		"GlucoseInternalTime,GlucoseDisplayTime,GlucoseValue,MeterInternalTime,MeterDisplayTime,MeterValue,DeviceGeneration,SerialNumber",
		"2014-01-10 08:00:00,2014-01-10 04:00:00,110,,,,G4Platinum,SM1",
		"2014-01-10 09:00:00,2014-01-10 05:00:00,Low,2014-01-10 09:01:00,2014-01-10 05:01:00,95,G4Platinum,SM1",
		"2014-01-10 10:00:00,2014-01-10 06:00:00,999,,,,G4Platinum,SM1",
		"not-a-time,2014-01-10 06:00:00,100,,,,G4Platinum,SM1",
	}, "\n")

	store, result, err := ParseTerse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Rows != 4 {
		t.Errorf("expected 4 rows, got %d", result.Rows)
	}
	if len(result.Rejected) != 2 {
		t.Fatalf("expected 2 rejected rows, got %d: %v", len(result.Rejected), result.Rejected)
	}
	if result.Rejected[0].Line != 4 || !errors.Is(result.Rejected[0], ErrValueOutOfRange) {
		t.Errorf("unexpected first rejection: %v", result.Rejected[0])
	}
	if result.Rejected[1].Line != 5 || !errors.Is(result.Rejected[1], ErrMalformedTimestamp) {
		t.Errorf("unexpected second rejection: %v", result.Rejected[1])
	}

	readings := store.Readings()
	if len(readings) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(readings))
	}
	wantOrder := []string{"2014-01-10 09:01:00", "2014-01-10 09:00:00", "2014-01-10 08:00:00"}
	for i, w := range wantOrder {
		if readings[i].InternalTime != w {
			t.Errorf("reading %d: expected %s, got %s", i, w, readings[i].InternalTime)
		}
	}
	if readings[0].Subtype != Calibration || readings[1].Subtype != Sensor {
		t.Errorf("unexpected subtypes: %s, %s", readings[0].Subtype, readings[1].Subtype)
	}
	if readings[1].Value != LowValue || readings[1].OutOfRange == nil {
		t.Errorf("expected Low sentinel mapping, got %d %+v", readings[1].Value, readings[1].OutOfRange)
	}
	if readings[2].Generation != G4Platinum || readings[2].Serial != "SM1" {
		t.Errorf("unexpected identity: %s %s", readings[2].Generation, readings[2].Serial)
	}
	if len(store.Sensors()) != 2 || len(store.Calibrations()) != 1 {
		t.Errorf("unexpected split: %d sensors, %d calibrations", len(store.Sensors()), len(store.Calibrations()))
	}
}

func TestParseTerse_TabDelimitedWithoutIdentity(t *testing.T) {
	input := "GlucoseInternalTime\tGlucoseDisplayTime\tGlucoseValue\tMeterInternalTime\tMeterDisplayTime\tMeterValue\n" +
		"2013-05-01 12:00:00.000\t2013-05-01 08:00:00.000\t150\t\t\t\n"

	store, result, err := ParseTerse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", result.Rejected)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 reading, got %d", store.Len())
	}
	r := store.Readings()[0]
	if r.Generation != Unknown || r.Serial != "" {
		t.Errorf("expected unknown identity, got %s %q", r.Generation, r.Serial)
	}
	if r.ClockDifference() != 4*time.Hour {
		t.Errorf("expected 4h clock difference, got %v", r.ClockDifference())
	}
}

func TestParseTerse_Empty(t *testing.T) {
	store, result, err := ParseTerse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Len() != 0 || result.Rows != 0 {
		t.Fatalf("expected empty store, got %d readings", store.Len())
	}
}
