package versioning_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jerome/simply-versioned/internal/database"
	"github.com/jerome/simply-versioned/internal/metrics"
	"github.com/jerome/simply-versioned/internal/testutil"
)

func TestController_Metrics(t *testing.T) {
	store := &testutil.FaultyStore{Store: database.NewMemoryStore(), AppendConflicts: 1}
	env := newTestEnv(t, store)
	env.policy.SetKeep("aardvark", 1)
	m := metrics.NewMetrics(prometheus.NewRegistry(), "")
	env.c.SetMetrics(m)

	env.saveAardvark(t, "Anthony", 30, 3)

	if got := promtestutil.ToFloat64(m.VersionsCreatedTotal.WithLabelValues("aardvark")); got != 3 {
		t.Errorf("versions_created_total = %v, want 3", got)
	}
	if got := promtestutil.ToFloat64(m.AppendConflictsTotal.WithLabelValues("aardvark")); got != 1 {
		t.Errorf("append_conflicts_total = %v, want 1", got)
	}
	if got := promtestutil.ToFloat64(m.VersionsTrimmedTotal.WithLabelValues("aardvark")); got != 2 {
		t.Errorf("versions_trimmed_total = %v, want 2", got)
	}

	store.AppendErr = errors.New("gone")
	env.saveAardvark(t, "Bertha", 3, 1)
	if got := promtestutil.ToFloat64(m.HookFailuresTotal.WithLabelValues("aardvark", "after_save")); got != 1 {
		t.Errorf("hook_failures_total = %v, want 1", got)
	}
}

func TestController_Tracing(t *testing.T) {
	env := newTestEnv(t, nil)
	recorder := tracetest.NewSpanRecorder()
	env.c.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	a := env.saveAardvark(t, "Anthony", 30, 2)
	if err := env.c.RevertToVersion(env.ctx, a, 1); err != nil {
		t.Fatalf("RevertToVersion() error = %v", err)
	}

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	// Two saves, then the revert and the save nested inside it.
	want := []string{"versioning.AfterSave", "versioning.AfterSave", "versioning.AfterSave", "versioning.RevertTo"}
	if len(names) != len(want) {
		t.Fatalf("spans = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("spans = %v, want %v", names, want)
			break
		}
	}

	store := &testutil.FaultyStore{Store: database.NewMemoryStore(), AppendErr: errors.New("gone")}
	env = newTestEnv(t, store)
	recorder = tracetest.NewSpanRecorder()
	env.c.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	env.saveAardvark(t, "Anthony", 30, 1)

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", ended[0].Status().Code)
	}
}
