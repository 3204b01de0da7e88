package versioning_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jerome/simply-versioned/internal/database"
	"github.com/jerome/simply-versioned/internal/testutil"
	"github.com/jerome/simply-versioned/internal/versioning"
)

func seedVersions(t *testing.T, store versioning.Store, owner versioning.Owner, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := store.Append(context.Background(), &versioning.Version{
			ID:       fmt.Sprintf("v-%d", i),
			Owner:    owner,
			Number:   int64(i),
			Snapshot: []byte(fmt.Sprintf("n: %d", i)),
		})
		if err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}
}

func TestRetentionPolicy_KeepFor(t *testing.T) {
	p := versioning.NewRetentionPolicy(versioning.DefaultKeep).
		SetKeep("aardvark", 3).
		SetKeep("gnu", versioning.Unlimited)

	tests := []struct {
		ownerType string
		want      versioning.Keep
	}{
		{"aardvark", 3},
		{"gnu", versioning.Unlimited},
		{"okapi", versioning.DefaultKeep},
	}
	for _, tt := range tests {
		if got := p.KeepFor(tt.ownerType); got != tt.want {
			t.Errorf("KeepFor(%q) = %d, want %d", tt.ownerType, got, tt.want)
		}
	}
}

func TestRetentionPolicy_Trim(t *testing.T) {
	ctx := context.Background()
	owner := versioning.Owner{ID: 1, Type: "aardvark"}

	tests := []struct {
		name      string
		keep      versioning.Keep
		seeded    int
		wantN     int64
		wantFirst int64
	}{
		{name: "trims oldest", keep: 3, seeded: 5, wantN: 2, wantFirst: 3},
		{name: "at limit", keep: 5, seeded: 5, wantN: 0, wantFirst: 1},
		{name: "zero keeps one", keep: 0, seeded: 4, wantN: 3, wantFirst: 4},
		{name: "unlimited", keep: versioning.Unlimited, seeded: 5, wantN: 0, wantFirst: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := database.NewMemoryStore()
			seedVersions(t, store, owner, tt.seeded)

			n, err := versioning.NewRetentionPolicy(tt.keep).Trim(ctx, store, owner)
			if err != nil {
				t.Fatalf("Trim() error = %v", err)
			}
			if n != tt.wantN {
				t.Errorf("Trim() = %d, want %d", n, tt.wantN)
			}
			first, err := store.First(ctx, owner)
			if err != nil {
				t.Fatalf("First() error = %v", err)
			}
			if first.Number != tt.wantFirst {
				t.Errorf("First().Number = %d, want %d", first.Number, tt.wantFirst)
			}
		})
	}
}

func TestRetentionPolicy_TrimEmptyHistory(t *testing.T) {
	store := database.NewMemoryStore()
	n, err := versioning.NewRetentionPolicy(1).Trim(context.Background(), store, versioning.Owner{ID: 1, Type: "aardvark"})
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Trim() = %d, want 0", n)
	}
}

func TestRetentionPolicy_ArchivesBeforeDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	arch := testutil.NewTestArchive()
	env.policy.SetKeep("aardvark", 2).SetArchive(arch)

	a := env.saveAardvark(t, "Anthony", 35, 5)

	if got := arch.Len(); got != 3 {
		t.Fatalf("archive Len() = %d, want 3", got)
	}
	if got := mustCount(t, env.c.Versions(a)); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}

	archived, err := arch.Get(env.ctx, a.VersionOwner(), 1)
	if err != nil {
		t.Fatalf("archive Get() error = %v", err)
	}
	if snap := decodeAardvark(t, env.c, archived); snap.Age != 35 {
		t.Errorf("archived age = %d, want 35", snap.Age)
	}
}

func TestRetentionPolicy_ArchiveFailureSkipsDelete(t *testing.T) {
	ctx := context.Background()
	owner := versioning.Owner{ID: 1, Type: "aardvark"}
	store := database.NewMemoryStore()
	seedVersions(t, store, owner, 4)

	p := versioning.NewRetentionPolicy(1).SetArchive(testutil.BrokenArchive{})
	_, err := p.Trim(ctx, store, owner)
	if !errors.Is(err, testutil.ErrArchiveUnavailable) {
		t.Fatalf("Trim() error = %v, want ErrArchiveUnavailable", err)
	}
	n, err := store.Count(ctx, owner)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Count() = %d, want 4", n)
	}
}

func TestController_Purge(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.saveAardvark(t, "Anthony", 35, 3)

	n, err := env.c.Purge(env.ctx, a.VersionOwner())
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Purge() = %d, want 3", n)
	}

	// Numbering restarts once the whole history is gone.
	if err := env.c.Save(env.ctx, a); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	v, err := env.c.Versions(a).Current(env.ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if v.Number != 1 {
		t.Errorf("Number = %d, want 1", v.Number)
	}
}
