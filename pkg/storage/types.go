package storage

import "time"

// Boundary is a single offset change record as stored in the history.
type Boundary struct {
	// Effective at
	InternalTime string
	DisplayTime  string

	// Offset info
	OffsetHours int
	Timezone    string
	Reason      string
}

// Change captures a single change event for auditing or printing.
type Change struct {
	OccurredAt time.Time

	// Boundary info
	InternalTime string
	OffsetHours  int
	Timezone     string
	Reason       string
	ChangeType   string // added | updated | removed
}

// Run summarizes one conversion.
type Run struct {
	ID         int64
	StartedAt  time.Time
	Input      string
	Readings   int
	Resolved   int
	Unresolved int
	Rejected   int
	Boundaries int
}
