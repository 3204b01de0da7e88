package app

import (
	"testing"

	"github.com/jerome/simply-versioned/internal/testutil"
)

func TestNewOperation(t *testing.T) {
	op := NewOperation("trim", testutil.FixedClock())

	if op.Name != "trim" {
		t.Errorf("Name = %q, want %q", op.Name, "trim")
	}
	if op.ID != "20240115T103000Z" {
		t.Errorf("ID = %q, want %q", op.ID, "20240115T103000Z")
	}
	if op.Status != "success" {
		t.Errorf("Status = %q, want %q", op.Status, "success")
	}
	if op.Failed() {
		t.Error("Failed() = true for a new operation")
	}
}

func TestOperation_Fail(t *testing.T) {
	op := NewOperation("purge", testutil.FixedClock())
	op.Fail()
	op.Fail()

	if !op.Failed() {
		t.Error("Failed() = false after Fail()")
	}
	if op.Status != "error" {
		t.Errorf("Status = %q, want %q", op.Status, "error")
	}
}
