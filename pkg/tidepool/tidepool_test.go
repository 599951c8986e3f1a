package tidepool

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/dexhound/dexhound/pkg/dexcom"
)

func fixedIDs() func() string {
	return func() string { return "00000000-0000-4000-8000-000000000000" }
}

func TestDatum_Resolved(t *testing.T) {
	r, err := dexcom.NewReading("2014-01-10 09:00:00", "2014-01-10 05:00:00", "High", dexcom.G4Platinum, "SM123", dexcom.Sensor)
	if err != nil {
		t.Fatal(err)
	}
	r.Resolution = dexcom.Resolution{OffsetHours: -5, Timezone: "US/Eastern", Resolved: true}
	r.LocalDisplayTime = "2014-01-10T05:00:00-05:00"
	r.AbsoluteTime = "2014-01-10T10:00:00Z"

	got := (&Converter{NewID: fixedIDs()}).Datum(r)
	offset := -300
	want := Datum{
		ID:                "00000000-0000-4000-8000-000000000000",
		Type:              TypeCBG,
		Units:             Units,
		Value:             dexcom.HighValue,
		DeviceTime:        "2014-01-10T05:00:00",
		DeviceID:          "DexcomG4Platinum_SM123",
		Timezone:          "US/Eastern",
		TimezoneOffset:    &offset,
		TimezoneAwareTime: "2014-01-10T05:00:00-05:00",
		Time:              "2014-01-10T10:00:00Z",
		Annotations:       []Annotation{{Code: AnnotationOutOfRange, Value: "high", Threshold: dexcom.HighThreshold}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected datum\nwant: %#v\ngot:  %#v", want, got)
	}
}

func TestWrite_UnresolvedCalibration(t *testing.T) {
	r, err := dexcom.NewReading("2014-01-10 09:00:00", "2014-01-10 05:00:00", "98", dexcom.SevenPlus, "", dexcom.Calibration)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, NewConverter().Data([]dexcom.Reading{r})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := gjson.ParseBytes(buf.Bytes())
	first := doc.Get("0")
	if first.Get("type").String() != TypeSMBG || first.Get("deviceId").String() != "DexcomSevenPlus" {
		t.Fatalf("unexpected datum %s", first.Raw)
	}
	for _, field := range []string{"time", "timezone", "timezoneOffset", "timezoneAwareTime"} {
		if first.Get(field).Exists() {
			t.Errorf("unresolved datum must not carry %s", field)
		}
	}
	if first.Get("annotations.0.code").String() != AnnotationUnresolved {
		t.Fatalf("expected the unresolved annotation, got %s", first.Get("annotations").Raw)
	}
	if len(first.Get("id").String()) != 36 {
		t.Fatalf("expected a uuid id, got %q", first.Get("id").String())
	}
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "[]\n" {
		t.Fatalf("expected an empty array, got %q", buf.String())
	}
}
