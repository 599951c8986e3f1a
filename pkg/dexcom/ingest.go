package dexcom

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Column positions of the merged "terse" export.
const (
	colGlucoseInternal = iota
	colGlucoseDisplay
	colGlucoseValue
	colMeterInternal
	colMeterDisplay
	colMeterValue
	colGeneration
	colSerial
)

// RowError reports a rejected input row.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// IngestResult summarizes a terse CSV parse.
type IngestResult struct {
	Rows     int
	Readings int
	Rejected []RowError
}

// Store holds readings sorted by internal time, most recent first.
type Store struct {
	readings []Reading
}

// NewStore sorts the readings and wraps them. Ties keep their input order,
// so a row's sensor reading stays ahead of its calibration.
func NewStore(readings []Reading) *Store {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Internal.After(readings[j].Internal)
	})
	return &Store{readings: readings}
}

// Readings returns the backing slice; callers mutate readings in place.
func (s *Store) Readings() []Reading {
	return s.readings
}

func (s *Store) Len() int {
	return len(s.readings)
}

// Sensors returns all and only sensor readings.
func (s *Store) Sensors() []Reading {
	return s.filter(Sensor)
}

// Calibrations returns all and only calibration readings.
func (s *Store) Calibrations() []Reading {
	return s.filter(Calibration)
}

func (s *Store) filter(subtype Subtype) []Reading {
	var out []Reading
	for _, r := range s.readings {
		if r.Subtype == subtype {
			out = append(out, r)
		}
	}
	return out
}

// ParseTerse reads a merged terse export (comma or tab delimited, header
// first) into a sorted Store. Rows that fail to parse are reported in the
// result and left out of the store; only an unreadable stream is an error.
func ParseTerse(r io.Reader) (*Store, IngestResult, error) {
	var result IngestResult

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, result, fmt.Errorf("failed to read export: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	// skip the header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return NewStore(nil), result, nil
		}
		return nil, result, fmt.Errorf("failed to read header: %w", err)
	}

	var readings []Reading
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		result.Rows++
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Line: line, Err: err})
			continue
		}

		parsed, err := parseRow(row)
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Line: line, Err: err})
			continue
		}
		readings = append(readings, parsed...)
	}

	result.Readings = len(readings)
	return NewStore(readings), result, nil
}

func sniffDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}
	if bytes.ContainsRune(header, '\t') {
		return '\t'
	}
	return ','
}

func parseRow(row []string) ([]Reading, error) {
	get := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	gen := ParseGeneration(get(colGeneration))
	serial := get(colSerial)

	var out []Reading

	// meter-only rows carry an empty glucose triple
	if get(colGlucoseInternal) != "" || get(colGlucoseValue) != "" {
		sensor, err := NewReading(get(colGlucoseInternal), get(colGlucoseDisplay), get(colGlucoseValue), gen, serial, Sensor)
		if err != nil {
			return nil, fmt.Errorf("sensor: %w", err)
		}
		out = append(out, sensor)
	}

	if get(colMeterInternal) != "" {
		cal, err := NewReading(get(colMeterInternal), get(colMeterDisplay), get(colMeterValue), gen, serial, Calibration)
		if err != nil {
			return nil, fmt.Errorf("calibration: %w", err)
		}
		out = append(out, cal)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty row", ErrMalformedValue)
	}
	return out, nil
}
