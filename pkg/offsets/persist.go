package offsets

import (
	"encoding/json"
	"fmt"
	"io"
)

// Persist writes every record as an indented JSON array, bootstrap first and
// then by effective internal time descending, so runs diff cleanly.
func (l *Log) Persist(w io.Writer) error {
	data, err := json.MarshalIndent(l.Records(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode offset log: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write offset log: %w", err)
	}
	return nil
}

// WriteSummary writes one paragraph per record for humans to review.
func (l *Log) WriteSummary(w io.Writer) error {
	for i, rec := range l.Records() {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, Describe(rec)); err != nil {
			return err
		}
	}
	return nil
}

// Describe renders a record as a sentence.
func Describe(rec Record) string {
	from := "Most recent readings (no explicit boundary)"
	if rec.Key() != "" {
		from = fmt.Sprintf("From internal time %s (display time %s) back", rec.EffectiveAt.InternalTime, rec.EffectiveAt.DisplayTime)
	}
	dst := ""
	if rec.Reason.DSTShift() {
		dst = ", adjusted for a daylight-saving shift"
	}
	return fmt.Sprintf("%s: display clock at UTC%+03d:00 in %s. Reason: %s%s.",
		from, rec.OffsetHours, rec.Timezone, rec.Reason.Base(), dst)
}
