// Package timezone turns a human-confirmed timezone name into the whole-hour
// UTC offset of a reading's display clock.
package timezone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/dexhound/dexhound/pkg/dexcom"
	"github.com/dexhound/dexhound/pkg/offsets"
)

var ErrUnresolved = errors.New("offset unresolved")

// Prompt is what a Prompter is shown when a boundary needs characterizing.
type Prompt struct {
	InternalTime string
	DisplayTime  string
	Display      time.Time
	Serial       string
	Generation   dexcom.Generation
	Reason       offsets.Reason
}

// Answer is the timezone in effect at the prompt's display time and whether
// a daylight-saving change happened that the device clock did not follow.
type Answer struct {
	Timezone string `mapstructure:"timezone"`
	DSTShift bool   `mapstructure:"dst"`
}

// Prompter supplies answers for boundaries, typically from a human.
type Prompter interface {
	Ask(ctx context.Context, p Prompt) (Answer, error)
}

// Resolution is a validated offset for one boundary.
type Resolution struct {
	OffsetHours int
	Timezone    string
	Reason      offsets.Reason
}

// Resolver validates prompter answers against the tz database.
type Resolver struct {
	prompter Prompter
}

// NewResolver wraps a Prompter.
func NewResolver(p Prompter) *Resolver {
	return &Resolver{prompter: p}
}

// Resolve asks for the timezone at the reading's display time and computes
// its offset. Any failure is reported as ErrUnresolved.
func (r *Resolver) Resolve(ctx context.Context, reading dexcom.Reading, reason offsets.Reason) (Resolution, error) {
	answer, err := r.prompter.Ask(ctx, Prompt{
		InternalTime: reading.InternalTime,
		DisplayTime:  reading.DisplayTime,
		Display:      reading.Display,
		Serial:       reading.Serial,
		Generation:   reading.Generation,
		Reason:       reason,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Resolution{}, ctxErr
		}
		return Resolution{}, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}

	name := strings.TrimSpace(answer.Timezone)
	loc, err := LoadLocation(name)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}

	hours := OffsetHours(reading.Display, loc)
	if answer.DSTShift {
		if reading.Display.Month() > time.June {
			hours++
		} else {
			hours--
		}
		reason = reason.WithDSTShift()
	}

	return Resolution{OffsetHours: hours, Timezone: name, Reason: reason}, nil
}

// LoadLocation loads a canonical tz database zone. Empty and "Local" are
// rejected since neither names a place.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("unknown timezone %q", name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", name)
	}
	return loc, nil
}

// OffsetHours is the UTC offset, in whole hours, of the wall clock reading
// in loc. Fractional-hour zones truncate toward zero.
func OffsetHours(wall time.Time, loc *time.Location) int {
	t := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), 0, loc)
	_, offset := t.Zone()
	return offset / 3600
}
