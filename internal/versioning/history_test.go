package versioning_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/jerome/simply-versioned/internal/database"
	"github.com/jerome/simply-versioned/internal/testutil"
	"github.com/jerome/simply-versioned/internal/versioning"
)

func TestHistory_Navigation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.policy.SetKeep("aardvark", 4)
	a := env.saveAardvark(t, "Anthony", 30, 6)
	h := env.c.Versions(a)

	if h.Owner() != a.VersionOwner() {
		t.Errorf("Owner() = %v, want %v", h.Owner(), a.VersionOwner())
	}

	list, err := h.List(env.ctx, versioning.Descending)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var got []int64
	for _, v := range list {
		got = append(got, v.Number)
	}
	want := []int64{6, 5, 4, 3}
	if len(got) != len(want) {
		t.Fatalf("List() numbers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List() numbers = %v, want %v", got, want)
		}
	}

	tests := []struct {
		name    string
		nav     func() (*versioning.Version, error)
		want    int64
		missing bool
	}{
		{name: "get", nav: func() (*versioning.Version, error) { return h.Get(env.ctx, 4) }, want: 4},
		{name: "get trimmed", nav: func() (*versioning.Version, error) { return h.Get(env.ctx, 2) }, missing: true},
		{name: "get never created", nav: func() (*versioning.Version, error) { return h.Get(env.ctx, 7) }, missing: true},
		{name: "first", nav: func() (*versioning.Version, error) { return h.First(env.ctx) }, want: 3},
		{name: "current", nav: func() (*versioning.Version, error) { return h.Current(env.ctx) }, want: 6},
		{name: "next", nav: func() (*versioning.Version, error) { return h.Next(env.ctx, 4) }, want: 5},
		{name: "next across gap", nav: func() (*versioning.Version, error) { return h.Next(env.ctx, 1) }, want: 3},
		{name: "next of current", nav: func() (*versioning.Version, error) { return h.Next(env.ctx, 6) }, missing: true},
		{name: "previous", nav: func() (*versioning.Version, error) { return h.Previous(env.ctx, 5) }, want: 4},
		{name: "previous of first", nav: func() (*versioning.Version, error) { return h.Previous(env.ctx, 3) }, missing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.nav()
			if tt.missing {
				if !errors.Is(err, versioning.ErrVersionNotFound) {
					t.Fatalf("error = %v, want ErrVersionNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if v.Number != tt.want {
				t.Errorf("Number = %d, want %d", v.Number, tt.want)
			}
		})
	}
}

func TestController_NextPrevious(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.saveAardvark(t, "Anthony", 30, 3)

	v2, err := env.c.Versions(a).Get(env.ctx, 2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	next, err := env.c.Next(env.ctx, v2)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if snap := decodeAardvark(t, env.c, next); snap.Age != 32 {
		t.Errorf("Next() age = %d, want 32", snap.Age)
	}

	prev, err := env.c.Previous(env.ctx, v2)
	if err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	if snap := decodeAardvark(t, env.c, prev); snap.Age != 30 {
		t.Errorf("Previous() age = %d, want 30", snap.Age)
	}
}

func TestController_ToModelDoesNotTouchHost(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.saveAardvark(t, "Anthony", 30, 2)

	first, err := env.c.Versions(a).First(env.ctx)
	if err != nil {
		t.Fatalf("First() error = %v", err)
	}
	attrs, err := env.c.ToModel(first)
	if err != nil {
		t.Fatalf("ToModel() error = %v", err)
	}
	if attrs["age"] != 30 {
		t.Errorf("ToModel() age = %v, want 30", attrs["age"])
	}
	if a.Age != 31 {
		t.Errorf("host age = %d, want 31", a.Age)
	}
	if got := mustCount(t, env.c.Versions(a)); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestController_SealedSnapshots(t *testing.T) {
	ctx := context.Background()
	sealer := testutil.NewTestSealer()
	c := versioning.NewController(database.NewMemoryStore(), versioning.NewYAMLCodec(sealer), nil, testutil.NewMemoryHosts(), nil, nil, nil)

	a := &testutil.Aardvark{Name: "Anthony", Age: 35}
	if err := c.Save(ctx, a); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	v, err := c.Versions(a).Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if !bytes.HasPrefix(v.Snapshot, []byte("SVENC")) {
		t.Errorf("stored snapshot is not sealed: %q", v.Snapshot)
	}

	if _, err := c.ToModel(v); !errors.Is(err, versioning.ErrLocked) {
		t.Fatalf("ToModel() error = %v, want ErrLocked", err)
	}
	if err := c.RevertTo(ctx, a, v); !errors.Is(err, versioning.ErrLocked) {
		t.Fatalf("RevertTo() error = %v, want ErrLocked", err)
	}

	if err := sealer.Unlock("any"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	snap := decodeAardvark(t, c, v)
	if snap.Name != "Anthony" || snap.Age != 35 {
		t.Errorf("snapshot = %+v, want Anthony/35", snap)
	}
}
