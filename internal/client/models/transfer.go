// Package models defines client-side data models used by the blefs CLI.
package models

import "time"

// Op names a session operation.
type Op string

const (
	OpCreate Op = "create"
	OpDelete Op = "delete"
	OpMkdir  Op = "mkdir"
	OpList   Op = "list"
	OpRead   Op = "read"
	OpWrite  Op = "write"
)

// Status is the outcome of a recorded operation.
type Status string

const (
	StatusRunning   Status = "running"
	StatusOK        Status = "ok"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Transfer is one operation against a device, as kept in the local history.
type Transfer struct {
	// ID is the operation id, also attached to every log line of the operation.
	ID string

	Op     Op
	Device string
	// Remote is the path on the device the operation addressed.
	Remote string

	Status Status
	// Bytes is the number of file bytes confirmed, or the entry count for list.
	Bytes int64
	// Error holds the failure message for unsuccessful operations.
	Error string
	// Checksum is the BLAKE2b-256 digest of the file content moved by a
	// successful read or write. Empty otherwise.
	Checksum string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Outcome is what gets recorded when an operation ends.
type Outcome struct {
	Status   Status
	Bytes    int64
	Error    string
	Checksum string
}

// Duration is zero until the operation has finished.
func (t Transfer) Duration() time.Duration {
	if t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}
