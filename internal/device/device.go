// Package device holds the shared value types for the monitored relay:
// the two-field state snapshot and the field identifiers used across the
// engine, the backend client, and the BLE link.
package device

// Field identifies one of the two independently tracked toggles.
type Field string

const (
	// FieldStatus is the relay/socket energized flag.
	FieldStatus Field = "status"
	// FieldFunction is the monitoring-function active flag.
	FieldFunction Field = "function"
)

// Valid reports whether f names a known field.
func (f Field) Valid() bool {
	return f == FieldStatus || f == FieldFunction
}

// Label returns the human-readable field name used in notifications.
func (f Field) Label() string {
	if f == FieldStatus {
		return "Status"
	}
	return "Function"
}

// State is a snapshot of the relay. The reconciliation engine owns the
// authoritative copy; everything else receives copies.
type State struct {
	Status   bool `json:"status"`
	Function bool `json:"function"`
}

// Get returns the value of field f.
func (s State) Get(f Field) bool {
	if f == FieldStatus {
		return s.Status
	}
	return s.Function
}

// Set assigns the value of field f.
func (s *State) Set(f Field, v bool) {
	if f == FieldStatus {
		s.Status = v
		return
	}
	s.Function = v
}
