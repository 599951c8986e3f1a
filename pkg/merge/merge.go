// Package merge combines overlapping Dexcom Studio exports into a single,
// deduplicated CSV sorted by glucose internal time.
package merge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dexhound/dexhound/internal/utils"
	"github.com/dexhound/dexhound/pkg/dexcom"
)

// ExportHeader is the header row of every Dexcom Studio export.
var ExportHeader = []string{
	"PatientInfoField", "PatientInfoValue",
	"GlucoseInternalTime", "GlucoseDisplayTime", "GlucoseValue",
	"MeterInternalTime", "MeterDisplayTime", "MeterValue",
	"EventLoggedInternalTime", "EventLoggedDisplayTime", "EventTime", "EventType", "EventDescription",
}

// TerseHeader keeps only the glucose and meter columns.
var TerseHeader = []string{
	"GlucoseInternalTime", "GlucoseDisplayTime", "GlucoseValue",
	"MeterInternalTime", "MeterDisplayTime", "MeterValue",
}

const (
	ColumnGeneration = "DeviceGeneration"
	ColumnSerial     = "SerialNumber"

	serialLabel = "SerialNumber"

	// first and last export columns kept by the terse layout
	terseFrom = 2
	terseTo   = 8
)

var ErrNotAnExport = errors.New("not a Dexcom Studio export")

// Options selects the output layout.
type Options struct {
	Comma      bool
	Generation bool
	Serial     bool
	Terse      bool
}

// Normalize applies implied options. Serial numbers are only ever written
// together with the device generation.
func (o Options) Normalize() Options {
	if o.Serial {
		o.Generation = true
	}
	return o
}

// Delimiter returns the output field separator.
func (o Options) Delimiter() rune {
	if o.Comma {
		return ','
	}
	return '\t'
}

// FileStats reports what a single export contributed.
type FileStats struct {
	Path       string
	Rows       int
	Duplicates int
	Skipped    int
	Serial     string
	Generation dexcom.Generation
}

// Set accumulates unique export rows.
type Set struct {
	opts Options
	seen map[string]struct{}
	rows [][]string
}

// NewSet returns an empty set writing rows in the given layout.
func NewSet(opts Options) *Set {
	return &Set{opts: opts.Normalize(), seen: make(map[string]struct{})}
}

// Len is the number of unique rows.
func (s *Set) Len() int {
	return len(s.rows)
}

// AddFile adds the rows of the export at path.
func (s *Set) AddFile(path string) (FileStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileStats{Path: path}, err
	}
	defer f.Close()
	return s.Add(path, f)
}

// Add reads a tab-delimited export and adds its rows. The two patient info
// columns are blanked so rows repeated across exports collapse, and the
// device generation and serial are appended when requested.
func (s *Set) Add(name string, r io.Reader) (FileStats, error) {
	stats := FileStats{Path: name}

	rdr := newExportReader(r)
	header, err := rdr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return stats, fmt.Errorf("%w: %s is empty", ErrNotAnExport, name)
		}
		return stats, fmt.Errorf("failed to read header of %s: %w", name, err)
	}
	if !isExportHeader(header) {
		return stats, fmt.Errorf("%w: %s", ErrNotAnExport, name)
	}

	// the serial only shows up a few rows in, so buffer the file first
	var pending [][]string
	for {
		row, err := rdr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read %s: %w", name, err)
		}
		row = pad(row, len(ExportHeader))
		if row[0] == serialLabel {
			stats.Serial = strings.TrimSpace(row[1])
		}
		row[0], row[1] = "", ""
		pending = append(pending, row)
	}
	stats.Generation = dexcom.GenerationFromSerial(stats.Serial)

	for _, row := range pending {
		if s.opts.Terse && !hasReading(row) {
			stats.Skipped++
			continue
		}
		if s.opts.Generation {
			row = append(row, string(stats.Generation))
		}
		if s.opts.Serial {
			row = append(row, stats.Serial)
		}
		stats.Rows++

		key := strings.Join(row, "\x1f")
		if _, dup := s.seen[key]; dup {
			stats.Duplicates++
			continue
		}
		s.seen[key] = struct{}{}
		s.rows = append(s.rows, row)
	}

	utils.Log.Infof("[merge] %d readings in %s (%s %s)", stats.Rows, name, stats.Generation, stats.Serial)
	utils.Log.Infof("[merge] %d items in set", s.Len())
	if stats.Duplicates > 0 {
		utils.Log.Infof("[merge] %d duplicate records in this file", stats.Duplicates)
	}
	return stats, nil
}

// Header is the output header for the set's layout.
func (s *Set) Header() []string {
	var header []string
	if s.opts.Terse {
		header = append(header, TerseHeader...)
	} else {
		header = append(header, ExportHeader...)
	}
	if s.opts.Generation {
		header = append(header, ColumnGeneration)
	}
	if s.opts.Serial {
		header = append(header, ColumnSerial)
	}
	return header
}

// Write emits the header and every unique row, oldest glucose internal time
// first, and returns the number of rows written.
func (s *Set) Write(w io.Writer) (int, error) {
	rows := make([][]string, len(s.rows))
	copy(rows, s.rows)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i][terseFrom] < rows[j][terseFrom]
	})

	wrtr := csv.NewWriter(w)
	wrtr.Comma = s.opts.Delimiter()
	if err := wrtr.Write(s.Header()); err != nil {
		return 0, err
	}
	for _, row := range rows {
		if err := wrtr.Write(s.layout(row)); err != nil {
			return 0, err
		}
	}
	wrtr.Flush()
	if err := wrtr.Error(); err != nil {
		return 0, fmt.Errorf("failed to write merged rows: %w", err)
	}
	return len(rows), nil
}

func (s *Set) layout(row []string) []string {
	if !s.opts.Terse {
		return row
	}
	out := append([]string(nil), row[terseFrom:terseTo]...)
	return append(out, row[len(ExportHeader):]...)
}

// IsExport reports whether the file at path starts with the Dexcom Studio
// export header.
func IsExport(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header, err := newExportReader(f).Read()
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		// unparseable files are simply not exports
		return false, nil
	}
	return isExportHeader(header), nil
}

func newExportReader(r io.Reader) *csv.Reader {
	rdr := csv.NewReader(r)
	rdr.Comma = '\t'
	rdr.FieldsPerRecord = -1
	rdr.LazyQuotes = true
	return rdr
}

func isExportHeader(header []string) bool {
	if len(header) != len(ExportHeader) {
		return false
	}
	for i := range header {
		h := header[i]
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if strings.TrimSpace(h) != ExportHeader[i] {
			return false
		}
	}
	return true
}

func hasReading(row []string) bool {
	for _, col := range row[terseFrom:terseTo] {
		if strings.TrimSpace(col) != "" {
			return true
		}
	}
	return false
}

func pad(row []string, n int) []string {
	if len(row) >= n {
		return row[:n]
	}
	return append(row, make([]string, n-len(row))...)
}
