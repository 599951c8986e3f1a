package storage

import (
	"strings"

	"github.com/dexhound/dexhound/pkg/offsets"
)

// BuildBoundaries converts change log records into storable boundaries.
func BuildBoundaries(records []offsets.Record) []Boundary {
	out := make([]Boundary, 0, len(records))
	for _, rec := range records {
		out = append(out, Boundary{
			InternalTime: strings.TrimSpace(rec.EffectiveAt.InternalTime),
			DisplayTime:  strings.TrimSpace(rec.EffectiveAt.DisplayTime),
			OffsetHours:  rec.OffsetHours,
			Timezone:     NormalizeTimezone(rec.Timezone),
			Reason:       string(rec.Reason),
		})
	}
	return out
}

// NormalizeTimezone trims a zone name. The tz database is case sensitive, so
// case is left alone.
func NormalizeTimezone(s string) string {
	return strings.TrimSpace(s)
}
