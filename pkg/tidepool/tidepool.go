// Package tidepool serializes annotated readings as Tidepool data.
package tidepool

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/dexhound/dexhound/pkg/dexcom"
)

const (
	TypeCBG  = "cbg"
	TypeSMBG = "smbg"

	Units = "mg/dL"

	// DeviceTimeFormat is the zone-less layout Tidepool expects for deviceTime.
	DeviceTimeFormat = "2006-01-02T15:04:05"

	AnnotationOutOfRange = "bg/out-of-range"
	AnnotationUnresolved = "dexhound/unresolved-offset"
)

// Annotation flags a datum that needs care when interpreted.
type Annotation struct {
	Code      string `json:"code"`
	Value     string `json:"value,omitempty"`
	Threshold int    `json:"threshold,omitempty"`
}

// Datum is a single Tidepool blood glucose record. Time fields are left out
// when the reading's offset could not be resolved.
type Datum struct {
	ID                string       `json:"id"`
	Type              string       `json:"type"`
	Units             string       `json:"units"`
	Value             int          `json:"value"`
	DeviceTime        string       `json:"deviceTime"`
	DeviceID          string       `json:"deviceId"`
	Timezone          string       `json:"timezone,omitempty"`
	TimezoneOffset    *int         `json:"timezoneOffset,omitempty"`
	TimezoneAwareTime string       `json:"timezoneAwareTime,omitempty"`
	Time              string       `json:"time,omitempty"`
	Annotations       []Annotation `json:"annotations,omitempty"`
}

// Converter builds data from readings. NewID defaults to random UUIDs.
type Converter struct {
	NewID func() string
}

// NewConverter returns a converter issuing uuid v4 ids.
func NewConverter() *Converter {
	return &Converter{NewID: uuid.NewString}
}

// Datum converts a single annotated reading.
func (c *Converter) Datum(r dexcom.Reading) Datum {
	newID := c.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	d := Datum{
		ID:         newID(),
		Type:       TypeCBG,
		Units:      Units,
		Value:      r.Value,
		DeviceTime: r.Display.Format(DeviceTimeFormat),
		DeviceID:   deviceID(r),
	}
	if r.Subtype == dexcom.Calibration {
		d.Type = TypeSMBG
	}

	if r.OutOfRange != nil {
		d.Annotations = append(d.Annotations, Annotation{
			Code:      AnnotationOutOfRange,
			Value:     r.OutOfRange.Value,
			Threshold: r.OutOfRange.Threshold,
		})
	}

	if !r.Resolution.Resolved || r.AbsoluteTime == "" {
		d.Annotations = append(d.Annotations, Annotation{Code: AnnotationUnresolved})
		return d
	}

	minutes := r.Resolution.OffsetHours * 60
	d.Timezone = r.Resolution.Timezone
	d.TimezoneOffset = &minutes
	d.TimezoneAwareTime = r.LocalDisplayTime
	d.Time = r.AbsoluteTime
	return d
}

// Data converts every reading, keeping their order.
func (c *Converter) Data(readings []dexcom.Reading) []Datum {
	out := make([]Datum, 0, len(readings))
	for _, r := range readings {
		out = append(out, c.Datum(r))
	}
	return out
}

// Write encodes data as an indented JSON array.
func Write(w io.Writer, data []Datum) error {
	if data == nil {
		data = []Datum{}
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tidepool data: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write tidepool data: %w", err)
	}
	return nil
}

func deviceID(r dexcom.Reading) string {
	if r.Serial == "" {
		return "Dexcom" + string(r.Generation)
	}
	return fmt.Sprintf("Dexcom%s_%s", r.Generation, r.Serial)
}
