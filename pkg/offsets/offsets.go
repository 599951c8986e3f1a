// Package offsets keeps the log of display-clock offset changes inferred by
// the bloodhound walk, keyed by the internal timestamp of the boundary reading.
package offsets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dexhound/dexhound/internal/utils"
)

// Reason explains why an offset boundary was recorded.
type Reason string

const (
	ReasonUser             Reason = "input-by-user"
	ReasonGenerationChange Reason = "device-generation-change"
	ReasonIdentityChange   Reason = "device-identity-change"
	ReasonDrift            Reason = "inferred-drift"

	dstSuffix = "+dst-shift"
)

// WithDSTShift marks the reason as adjusted for a daylight-saving transition.
func (r Reason) WithDSTShift() Reason {
	if r.DSTShift() {
		return r
	}
	return r + dstSuffix
}

// DSTShift reports whether the reason carries the daylight-saving marker.
func (r Reason) DSTShift() bool {
	return strings.HasSuffix(string(r), dstSuffix)
}

// Base strips the daylight-saving marker.
func (r Reason) Base() Reason {
	return Reason(strings.TrimSuffix(string(r), dstSuffix))
}

var ErrDuplicateKey = errors.New("offset change already recorded")

// EffectiveAt holds the raw clocks of the boundary reading.
type EffectiveAt struct {
	InternalTime string `json:"internal_time"`
	DisplayTime  string `json:"display_time"`
}

// Record is one offset boundary. Fields are declared in persisted order.
type Record struct {
	EffectiveAt EffectiveAt `json:"effective_at"`
	OffsetHours int         `json:"display_offset"`
	Timezone    string      `json:"timezone"`
	Reason      Reason      `json:"reason"`

	// Replayed is set on records loaded from a previous run.
	Replayed bool `json:"-"`
}

// Key is the lookup key of the record; empty for the bootstrap.
func (r Record) Key() string {
	return r.EffectiveAt.InternalTime
}

// Log is the set of offset boundaries for one run.
type Log struct {
	byKey     map[string]Record
	bootstrap *Record
	added     []Record
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{byKey: make(map[string]Record)}
}

// Load parses a persisted log. Missing or corrupt input is an empty log,
// and records without an effective internal time are dropped: the bootstrap
// is re-established on every run and never replayed.
func Load(r io.Reader) *Log {
	l := NewLog()
	if r == nil {
		return l
	}
	data, err := io.ReadAll(r)
	if err != nil {
		utils.Log.Warnf("[offsets] could not read change log, starting empty: %v", err)
		return l
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return l
	}
	if !gjson.ValidBytes(data) {
		utils.Log.Warn("[offsets] change log is not valid JSON, starting empty")
		return l
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		utils.Log.Warn("[offsets] change log is not a JSON array, starting empty")
		return l
	}
	parsed.ForEach(func(_, v gjson.Result) bool {
		rec := Record{
			EffectiveAt: EffectiveAt{
				InternalTime: v.Get("effective_at.internal_time").String(),
				DisplayTime:  v.Get("effective_at.display_time").String(),
			},
			OffsetHours: int(v.Get("display_offset").Int()),
			Timezone:    v.Get("timezone").String(),
			Reason:      Reason(v.Get("reason").String()),
			Replayed:    true,
		}
		if rec.Reason == "" {
			rec.Reason = Reason(v.Get("type").String())
		}
		if rec.Key() == "" {
			return true
		}
		if _, exists := l.byKey[rec.Key()]; !exists {
			l.byKey[rec.Key()] = rec
		}
		return true
	})
	return l
}

// LoadFile loads the log at path; a missing file is a first run.
func LoadFile(path string) *Log {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			utils.Log.Warnf("[offsets] could not open %s, starting empty: %v", path, err)
		} else {
			utils.Log.Debugf("[offsets] no change log at %s yet", path)
		}
		return NewLog()
	}
	defer f.Close()
	return Load(f)
}

// Lookup finds the record whose boundary reading has the given internal time.
func (l *Log) Lookup(internalTime string) (Record, bool) {
	if internalTime == "" {
		return Record{}, false
	}
	rec, ok := l.byKey[internalTime]
	return rec, ok
}

// Append adds a newly inferred record. A record with an empty key becomes
// the bootstrap of this run.
func (l *Log) Append(rec Record) error {
	rec.Replayed = false
	if rec.Key() == "" {
		l.bootstrap = &rec
		l.added = append(l.added, rec)
		return nil
	}
	if _, exists := l.byKey[rec.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, rec.Key())
	}
	l.byKey[rec.Key()] = rec
	l.added = append(l.added, rec)
	return nil
}

// Records returns the bootstrap (if any) followed by every keyed record,
// most recent boundary first.
func (l *Log) Records() []Record {
	out := make([]Record, 0, len(l.byKey)+1)
	if l.bootstrap != nil {
		out = append(out, *l.bootstrap)
	}
	keyed := make([]Record, 0, len(l.byKey))
	for _, rec := range l.byKey {
		keyed = append(keyed, rec)
	}
	sort.Slice(keyed, func(i, j int) bool {
		return keyed[i].Key() > keyed[j].Key()
	})
	return append(out, keyed...)
}

// Added returns the records appended during this run, in walk order.
func (l *Log) Added() []Record {
	return append([]Record(nil), l.added...)
}

// Len counts keyed records plus the bootstrap.
func (l *Log) Len() int {
	n := len(l.byKey)
	if l.bootstrap != nil {
		n++
	}
	return n
}

// Marshal renders the log in its persisted form.
func (l *Log) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := l.Persist(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
