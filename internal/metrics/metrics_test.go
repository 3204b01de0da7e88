package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Recorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "")

	m.VersionCreated("aardvark", 1)
	m.VersionCreated("aardvark", 3)
	m.VersionCreated("gnu", 1)
	m.AppendConflict("aardvark")
	m.AppendConflict("aardvark")
	m.VersionsTrimmed("aardvark", 4)
	m.HookFailed("gnu", "after_save")
	m.CaptureDuration("gnu", 3*time.Millisecond)

	if got := testutil.ToFloat64(m.VersionsCreatedTotal.WithLabelValues("aardvark")); got != 2 {
		t.Errorf("versions_created_total{aardvark} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VersionsCreatedTotal.WithLabelValues("gnu")); got != 1 {
		t.Errorf("versions_created_total{gnu} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AppendConflictsTotal.WithLabelValues("aardvark")); got != 2 {
		t.Errorf("append_conflicts_total{aardvark} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VersionsTrimmedTotal.WithLabelValues("aardvark")); got != 4 {
		t.Errorf("versions_trimmed_total{aardvark} = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.HookFailuresTotal.WithLabelValues("gnu", "after_save")); got != 1 {
		t.Errorf("hook_failures_total{gnu,after_save} = %v, want 1", got)
	}

	if n := testutil.CollectAndCount(m.CaptureDurationSeconds); n != 1 {
		t.Errorf("capture_duration_seconds series = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(m.AppendAttempts); n != 2 {
		t.Errorf("append_attempts series = %d, want 2", n)
	}
}

func TestMetrics_Namespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "billing")
	m.VersionCreated("invoice", 1)

	expected := `
# HELP billing_versions_created_total Total number of versions appended
# TYPE billing_versions_created_total counter
billing_versions_created_total{owner_type="invoice"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "billing_versions_created_total"); err != nil {
		t.Errorf("GatherAndCompare() error = %v", err)
	}
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice with the same registry would panic; separate
	// registries must not.
	NewMetrics(prometheus.NewRegistry(), "")
	NewMetrics(prometheus.NewRegistry(), "")
}
