package app

import "github.com/jerome/simply-versioned/internal/versioning"

// Operation describes one svctl invocation. Its ID tags every log line
// written while the command runs.
type Operation struct {
	ID     string
	Name   string
	Status string // "success" or "error"
}

// NewOperation creates an operation whose ID is derived from the start time.
func NewOperation(name string, clock versioning.Clock) *Operation {
	return &Operation{
		ID:     clock.Now().UTC().Format("20060102T150405Z"),
		Name:   name,
		Status: "success",
	}
}

// Fail marks the operation as failed. Status never returns to "success".
func (op *Operation) Fail() { op.Status = "error" }

func (op *Operation) Failed() bool { return op.Status == "error" }
