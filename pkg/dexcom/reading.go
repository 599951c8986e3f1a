// Package dexcom models Dexcom receiver readings: the two raw clocks, the
// device identity and the glucose value as exported by Dexcom Studio.
package dexcom

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Generation identifies the receiver family a reading came from.
type Generation string

const (
	SevenPlus  Generation = "SevenPlus"
	G4Platinum Generation = "G4Platinum"
	Unknown    Generation = "Unknown"
)

// Subtype separates continuous sensor readings from fingerstick calibrations.
type Subtype string

const (
	Sensor      Subtype = "sensor"
	Calibration Subtype = "calibration"
)

const (
	// TimeFormat is the layout of both raw Dexcom clocks.
	TimeFormat = "2006-01-02 15:04:05"

	MinValue = 20
	MaxValue = 600

	LowValue      = 39
	LowThreshold  = 40
	HighValue     = 401
	HighThreshold = 400
)

var (
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrValueOutOfRange    = errors.New("value out of range")
	ErrMalformedValue     = errors.New("malformed value")
)

var (
	sevenPlusSerial  = regexp.MustCompile(`^\d.+`)
	g4PlatinumSerial = regexp.MustCompile(`^SM\d.+`)
)

// OutOfRange marks a Low/High sentinel reading.
type OutOfRange struct {
	Value     string // "low" | "high"
	Threshold int
}

// Resolution is the offset attached to a reading by the bloodhound walk.
// Resolved is false for readings no boundary could be established for.
type Resolution struct {
	OffsetHours int
	Timezone    string
	Resolved    bool
}

// Reading is a single sensor or calibration value with both device clocks.
type Reading struct {
	InternalTime string
	DisplayTime  string
	Internal     time.Time
	Display      time.Time

	Generation Generation
	Serial     string
	Subtype    Subtype

	RawValue   string
	Value      int
	OutOfRange *OutOfRange

	Resolution       Resolution
	AbsoluteTime     string
	LocalDisplayTime string
}

// NewReading parses the raw fields of one reading.
func NewReading(internal, display, rawValue string, gen Generation, serial string, subtype Subtype) (Reading, error) {
	it, err := ParseTime(internal)
	if err != nil {
		return Reading{}, fmt.Errorf("internal time: %w", err)
	}
	dt, err := ParseTime(display)
	if err != nil {
		return Reading{}, fmt.Errorf("display time: %w", err)
	}
	value, oor, err := ParseValue(rawValue)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		InternalTime: internal,
		DisplayTime:  display,
		Internal:     it,
		Display:      dt,
		Generation:   gen,
		Serial:       serial,
		Subtype:      subtype,
		RawValue:     rawValue,
		Value:        value,
		OutOfRange:   oor,
	}, nil
}

// ParseTime parses a raw Dexcom clock value. Seven Plus receivers append
// milliseconds, which are dropped when the plain layout does not match.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	if len(s) > 4 {
		if t, err := time.Parse(TimeFormat, s[:len(s)-4]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}

// ParseValue maps a raw glucose string to its integer value.
func ParseValue(raw string) (int, *OutOfRange, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "Low":
		return LowValue, &OutOfRange{Value: "low", Threshold: LowThreshold}, nil
	case "High":
		return HighValue, &OutOfRange{Value: "high", Threshold: HighThreshold}, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %q", ErrMalformedValue, raw)
	}
	// calibrations can go below 40
	if v < MinValue || v > MaxValue {
		return 0, nil, fmt.Errorf("%w: %d", ErrValueOutOfRange, v)
	}
	return v, nil, nil
}

// ParseGeneration reads a generation column value.
func ParseGeneration(s string) Generation {
	switch Generation(strings.TrimSpace(s)) {
	case SevenPlus:
		return SevenPlus
	case G4Platinum:
		return G4Platinum
	default:
		return Unknown
	}
}

// GenerationFromSerial guesses the receiver family from its serial number.
func GenerationFromSerial(serial string) Generation {
	switch {
	case sevenPlusSerial.MatchString(serial):
		return SevenPlus
	case g4PlatinumSerial.MatchString(serial):
		return G4Platinum
	default:
		return Unknown
	}
}

// ClockDifference is the internal clock minus the display clock.
func (r Reading) ClockDifference() time.Duration {
	return r.Internal.Sub(r.Display)
}
