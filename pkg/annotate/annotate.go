// Package annotate stamps resolved readings with their local and absolute times.
package annotate

import (
	"time"

	"github.com/dexhound/dexhound/pkg/dexcom"
	"github.com/dexhound/dexhound/pkg/timezone"
)

// Annotate fills LocalDisplayTime and AbsoluteTime from the reading's
// resolution. Unresolved readings get empty strings. Calling it twice
// yields the same values.
func Annotate(r *dexcom.Reading) bool {
	if !r.Resolution.Resolved {
		r.LocalDisplayTime = ""
		r.AbsoluteTime = ""
		return false
	}

	d := r.Display
	local := time.Date(d.Year(), d.Month(), d.Day(), d.Hour(), d.Minute(), d.Second(), d.Nanosecond(),
		time.FixedZone("", r.Resolution.OffsetHours*3600))
	r.LocalDisplayTime = local.Format(time.RFC3339)

	loc, err := timezone.LoadLocation(r.Resolution.Timezone)
	if err != nil {
		// a resolution always carries a loadable zone; fall back to the fixed offset
		loc = local.Location()
	}
	named := time.Date(d.Year(), d.Month(), d.Day(), d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), loc)
	r.AbsoluteTime = named.UTC().Format(time.RFC3339)
	return true
}

// All annotates every reading in place.
func All(readings []dexcom.Reading) (annotated, skipped int) {
	for i := range readings {
		if Annotate(&readings[i]) {
			annotated++
		} else {
			skipped++
		}
	}
	return annotated, skipped
}
