// Package bloodhound sniffs out changes to a receiver's display clock settings.
//
// Readings are walked newest first. Each one either falls under a known
// boundary from the offset log, or is compared with the previous reading:
// a change of receiver generation, a change of G4 Platinum receiver, or a
// shift of the whole-hour difference between the internal and display clocks
// opens a new boundary whose offset is asked of a Resolver.
package bloodhound

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/dexhound/dexhound/internal/utils"
	"github.com/dexhound/dexhound/pkg/dexcom"
	"github.com/dexhound/dexhound/pkg/offsets"
	"github.com/dexhound/dexhound/pkg/timezone"
)

// Resolver characterizes a freshly detected boundary.
type Resolver interface {
	Resolve(ctx context.Context, reading dexcom.Reading, reason offsets.Reason) (timezone.Resolution, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithToleranceSeconds only treats an hour change as drift when the raw
// clock difference moved by more than the given number of seconds.
func WithToleranceSeconds(seconds int) Option {
	return func(e *Engine) {
		e.tolerance = time.Duration(seconds) * time.Second
	}
}

// Engine runs the bloodhound walk against an offset log.
type Engine struct {
	log       *offsets.Log
	resolver  Resolver
	tolerance time.Duration
}

// NewEngine builds an engine that reads and appends to log.
func NewEngine(log *offsets.Log, resolver Resolver, opts ...Option) *Engine {
	e := &Engine{log: log, resolver: resolver}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result summarizes a walk.
type Result struct {
	Added      []offsets.Record
	Resolved   int
	Unresolved int
	Reasons    map[offsets.Reason]int
}

type difference struct {
	hours int
	raw   time.Duration
}

// state is threaded through the walk, one reading at a time.
type state struct {
	prev     *dexcom.Reading
	diff     *difference
	current  dexcom.Resolution
	active   *offsets.Record
	activeAt time.Time
}

// Run resolves every reading in place. readings must be sorted by internal
// time, most recent first. Boundaries that cannot be resolved leave readings
// unresolved; only a log key collision or a cancelled context stops the walk.
func (e *Engine) Run(ctx context.Context, readings []dexcom.Reading) (Result, error) {
	result := Result{Reasons: make(map[offsets.Reason]int)}

	var st state
	for i := range readings {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		next, reason, err := e.step(ctx, st, readings[i])
		if err != nil {
			return result, err
		}
		if reason != "" {
			result.Reasons[reason]++
		}
		st = next

		readings[i].Resolution = st.current
		if st.current.Resolved {
			result.Resolved++
		} else {
			result.Unresolved++
		}
	}

	result.Added = e.log.Added()
	return result, nil
}

// step folds one reading into the walk state. The returned reason is set
// when a new boundary was recorded.
func (e *Engine) step(ctx context.Context, st state, r dexcom.Reading) (state, offsets.Reason, error) {
	diff := measure(r)

	if rec, ok := e.log.Lookup(r.InternalTime); ok {
		st.current = dexcom.Resolution{OffsetHours: rec.OffsetHours, Timezone: rec.Timezone, Resolved: true}
		st.active = &rec
		st.activeAt = r.Internal
		st.diff = &diff
		st.prev = &r
		return st, "", nil
	}

	// a boundary from a previous run governs everything older than it
	if st.active != nil && st.active.Replayed && r.Internal.Before(st.activeAt) {
		st.prev = &r
		return st, "", nil
	}

	reason, changed := e.classify(st, r, diff)
	st.prev = &r
	if !changed {
		return st, "", nil
	}
	st.diff = &diff

	res, err := e.resolver.Resolve(ctx, r, reason)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return st, "", err
		}
		utils.Log.Warnf("[bloodhound] could not resolve %s boundary at %s: %v; readings stay unresolved until the next boundary", reason, r.InternalTime, err)
		st.current = dexcom.Resolution{}
		st.active = nil
		st.activeAt = time.Time{}
		return st, "", nil
	}

	rec := offsets.Record{
		OffsetHours: res.OffsetHours,
		Timezone:    res.Timezone,
		Reason:      res.Reason,
	}
	// the bootstrap covers the most recent readings and has no replayable key
	if reason != offsets.ReasonUser {
		rec.EffectiveAt = offsets.EffectiveAt{InternalTime: r.InternalTime, DisplayTime: r.DisplayTime}
	}
	if err := e.log.Append(rec); err != nil {
		return st, "", err
	}
	utils.Log.Debugf("[bloodhound] %s boundary at %q: UTC%+d (%s)", rec.Reason, r.InternalTime, rec.OffsetHours, rec.Timezone)

	st.current = dexcom.Resolution{OffsetHours: res.OffsetHours, Timezone: res.Timezone, Resolved: true}
	st.active = &rec
	st.activeAt = r.Internal
	return st, rec.Reason, nil
}

func (e *Engine) classify(st state, r dexcom.Reading, diff difference) (offsets.Reason, bool) {
	switch {
	case st.prev == nil || st.diff == nil:
		return offsets.ReasonUser, true
	// the internal clock's offset from UTC differs between receiver generations
	case r.Generation != st.prev.Generation:
		return offsets.ReasonGenerationChange, true
	// and is not consistent across G4 Platinum receivers
	case r.Serial != st.prev.Serial && r.Generation == dexcom.G4Platinum:
		return offsets.ReasonIdentityChange, true
	// sometimes the user actually changed the device's settings
	case diff.hours != st.diff.hours && absDuration(diff.raw-st.diff.raw) > e.tolerance:
		return offsets.ReasonDrift, true
	}
	return "", false
}

// measure rounds the internal-minus-display difference to whole hours,
// half away from zero.
func measure(r dexcom.Reading) difference {
	raw := r.ClockDifference()
	return difference{hours: int(math.Round(raw.Hours())), raw: raw}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
