package sqlite

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/livecap/livecap/internal/keys"
)

func newTestStore(t *testing.T) *keyStore {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "keys.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &keyStore{db: db}
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := t.Context()

	rec, err := store.Create(ctx, keys.CreateParams{Key: "abc-123", Owner: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Key != "abc-123" || rec.Owner != "alice" || !rec.Active {
		t.Errorf("created record = %+v", rec)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	got, err := store.Get(ctx, "abc-123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("Get id = %d, want %d", got.ID, rec.ID)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, keys.ErrNotFound) {
		t.Errorf("Get missing error = %v, want ErrNotFound", err)
	}
}

func TestCreateGeneratesKey(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	rec, err := store.Create(t.Context(), keys.CreateParams{Owner: "bob"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(rec.Key) != 32 {
		t.Errorf("generated key length = %d, want 32", len(rec.Key))
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := t.Context()

	if _, err := store.Create(ctx, keys.CreateParams{Key: "dup", Owner: "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, keys.CreateParams{Key: "dup", Owner: "b"}); !errors.Is(err, keys.ErrDuplicate) {
		t.Errorf("duplicate error = %v, want ErrDuplicate", err)
	}
}

func TestValidateReasons(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := t.Context()

	past := time.Now().Add(-time.Hour).UTC()
	future := time.Now().Add(time.Hour).UTC()

	if _, err := store.Create(ctx, keys.CreateParams{Key: "good", Owner: "a", ExpiresAt: &future}); err != nil {
		t.Fatalf("Create good: %v", err)
	}
	if _, err := store.Create(ctx, keys.CreateParams{Key: "stale", Owner: "b", ExpiresAt: &past}); err != nil {
		t.Fatalf("Create stale: %v", err)
	}
	if _, err := store.Create(ctx, keys.CreateParams{Key: "gone", Owner: "c"}); err != nil {
		t.Fatalf("Create gone: %v", err)
	}
	if err := store.Revoke(ctx, "gone"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	tests := []struct {
		key    string
		valid  bool
		reason string
	}{
		{"good", true, ""},
		{"stale", false, keys.ReasonExpired},
		{"gone", false, keys.ReasonRevoked},
		{"never-seen", false, keys.ReasonUnknown},
	}
	for _, tt := range tests {
		v, err := store.Validate(ctx, tt.key)
		if err != nil {
			t.Fatalf("Validate(%q): %v", tt.key, err)
		}
		if v.Valid != tt.valid || v.Reason != tt.reason {
			t.Errorf("Validate(%q) = %+v, want valid=%v reason=%q", tt.key, v, tt.valid, tt.reason)
		}
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := t.Context()

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := store.Create(ctx, keys.CreateParams{Key: "k", Owner: "old", ExpiresAt: &expires}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	owner := "new"
	if err := store.Update(ctx, "k", keys.UpdateParams{Owner: &owner, ClearExpiry: true}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Owner != "new" {
		t.Errorf("owner = %q, want new", got.Owner)
	}
	if got.ExpiresAt != nil {
		t.Errorf("expires_at = %v, want cleared", got.ExpiresAt)
	}

	if err := store.Update(ctx, "missing", keys.UpdateParams{Owner: &owner}); !errors.Is(err, keys.ErrNotFound) {
		t.Errorf("Update missing error = %v, want ErrNotFound", err)
	}
	// Empty update still reports absence.
	if err := store.Update(ctx, "missing", keys.UpdateParams{}); !errors.Is(err, keys.ErrNotFound) {
		t.Errorf("empty Update missing error = %v, want ErrNotFound", err)
	}
}

func TestRevokeAndDelete(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := t.Context()

	if _, err := store.Create(ctx, keys.CreateParams{Key: "k", Owner: "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Revoke(ctx, "k"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after revoke: %v", err)
	}
	if got.Active {
		t.Error("key still active after revoke")
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, keys.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "k"); !errors.Is(err, keys.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if err := store.Revoke(ctx, "k"); !errors.Is(err, keys.ErrNotFound) {
		t.Errorf("Revoke missing error = %v, want ErrNotFound", err)
	}
}

func TestListOrderedByID(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := t.Context()

	for _, k := range []string{"first", "second", "third"} {
		if _, err := store.Create(ctx, keys.CreateParams{Key: k, Owner: k}); err != nil {
			t.Fatalf("Create %q: %v", k, err)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List length = %d, want 3", len(all))
	}
	for i, want := range []string{"first", "second", "third"} {
		if all[i].Key != want {
			t.Errorf("List[%d] = %q, want %q", i, all[i].Key, want)
		}
	}
}

func TestPruneExpired(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := t.Context()

	past := time.Now().Add(-time.Hour).UTC()
	future := time.Now().Add(time.Hour).UTC()

	if _, err := store.Create(ctx, keys.CreateParams{Key: "dead", Owner: "a", ExpiresAt: &past}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, keys.CreateParams{Key: "alive", Owner: "b", ExpiresAt: &future}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, keys.CreateParams{Key: "forever", Owner: "c"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := store.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}

	dead, _ := store.Get(ctx, "dead")
	if dead.Active {
		t.Error("expired key still active after prune")
	}
	alive, _ := store.Get(ctx, "alive")
	if !alive.Active {
		t.Error("unexpired key was revoked")
	}

	// Second prune finds nothing.
	if n, _ := store.PruneExpired(ctx); n != 0 {
		t.Errorf("second prune = %d, want 0", n)
	}
}
