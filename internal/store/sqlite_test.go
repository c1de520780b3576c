package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/provision/internal/ir"
)

// createTestStore opens and initializes a fresh database under t.TempDir.
func createTestStore(t *testing.T, project string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "provision.db")
	s, err := Open(path, project)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureInitialized(context.Background()); err != nil {
		t.Fatalf("EnsureInitialized() failed: %v", err)
	}
	return s, path
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	_, path := createTestStore(t, "p")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestEnsureInitialized_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provision.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path, "p")
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		for j := 0; j < 2; j++ {
			if err := s.EnsureInitialized(context.Background()); err != nil {
				t.Fatalf("EnsureInitialized() iteration %d/%d failed: %v", i, j, err)
			}
		}
		s.Close()
	}

	s, err := Open(path, "p")
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestPragmas(t *testing.T) {
	s, _ := createTestStore(t, "p")
	tests := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, want := range tests {
		var got string
		if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
			t.Fatalf("query %s: %v", name, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	s, _ := createTestStore(t, "p")
	_, err := s.Get(context.Background(), "widgets", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertAndGet(t *testing.T) {
	s, _ := createTestStore(t, "p")
	ctx := context.Background()
	payload := ir.Obj(ir.O("color", ir.IRString("red")), ir.O("tags", ir.Strings("a", "b")))

	if err := s.Upsert(ctx, "widgets", "sample_widget", payload); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	got, err := s.Get(ctx, "widgets", "sample_widget")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ir.MustContentHash(got) != ir.MustContentHash(payload) {
		t.Errorf("Get() = %v, want %v", got, payload)
	}
}

func TestUpsert_RevisionOnlyMovesOnChange(t *testing.T) {
	s, _ := createTestStore(t, "p")
	ctx := context.Background()
	red := ir.Obj(ir.O("color", ir.IRString("red")))
	blue := ir.Obj(ir.O("color", ir.IRString("blue")))

	for _, p := range []ir.IRObject{red, red, blue, blue} {
		if err := s.Upsert(ctx, "widgets", "w", p); err != nil {
			t.Fatalf("Upsert() failed: %v", err)
		}
	}
	rev, err := s.Revision(ctx, "widgets", "w")
	if err != nil {
		t.Fatalf("Revision() failed: %v", err)
	}
	if rev != 2 {
		t.Errorf("revision = %d, want 2", rev)
	}
}

func TestProjectsAreIsolated(t *testing.T) {
	a, path := createTestStore(t, "tenant-a")
	ctx := context.Background()
	if err := a.Upsert(ctx, "widgets", "w", ir.Obj(ir.O("n", ir.IRInt(1)))); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	b, err := Open(path, "tenant-b")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer b.Close()
	if err := b.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized() failed: %v", err)
	}
	if _, err := b.Get(ctx, "widgets", "w"); !errors.Is(err, ErrNotFound) {
		t.Errorf("tenant-b sees tenant-a document: %v", err)
	}
}

func TestList_SortedByKey(t *testing.T) {
	s, _ := createTestStore(t, "p")
	ctx := context.Background()
	for _, k := range []string{"b", "c", "a"} {
		if err := s.Upsert(ctx, "widgets", k, ir.Obj(ir.O("k", ir.IRString(k)))); err != nil {
			t.Fatalf("Upsert() failed: %v", err)
		}
	}
	if err := s.Upsert(ctx, "other", "z", ir.Obj()); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	docs, err := s.List(ctx, "widgets")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("List() returned %d docs, want 3", len(docs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if docs[i].Key != want {
			t.Errorf("docs[%d].Key = %q, want %q", i, docs[i].Key, want)
		}
		if docs[i].ContentHash != ir.MustContentHash(docs[i].Payload) {
			t.Errorf("docs[%d] content hash mismatch", i)
		}
	}
}

func TestReadOnly_PermissionDenied(t *testing.T) {
	s, path := createTestStore(t, "p")
	ctx := context.Background()
	if err := s.Upsert(ctx, "widgets", "w", ir.Obj(ir.O("n", ir.IRInt(1)))); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	s.Close()

	ro, err := Open(path, "p", ReadOnly())
	if err != nil {
		t.Fatalf("Open(ReadOnly) failed: %v", err)
	}
	defer ro.Close()
	if err := ro.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized() failed: %v", err)
	}
	if _, err := ro.Get(ctx, "widgets", "w"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	err = ro.Upsert(ctx, "widgets", "w", ir.Obj(ir.O("n", ir.IRInt(2))))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Upsert() error = %v, want ErrPermissionDenied", err)
	}
}

func TestClosedStoreUnavailable(t *testing.T) {
	s, _ := createTestStore(t, "p")
	s.Close()
	_, err := s.Get(context.Background(), "widgets", "w")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Get() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestNewerSchemaRejected(t *testing.T) {
	s, path := createTestStore(t, "p")
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	s2, err := Open(path, "p")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s2.Close()
	if err := s2.EnsureInitialized(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("EnsureInitialized() error = %v, want ErrStoreUnavailable", err)
	}
}
