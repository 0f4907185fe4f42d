package testsupport

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"loom/internal/store"
)

// MustOpenStore opens a store.Store backed by a per-test database file and
// registers cleanup.
func MustOpenStore(t testing.TB) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// ExecSQL runs a raw statement against the store's database file through a
// separate connection, for tests that need to corrupt or inspect state the
// store API does not expose.
func ExecSQL(t testing.TB, s *store.Store, statement string, args ...any) {
	t.Helper()

	db, err := sql.Open("sqlite", s.Path())
	if err != nil {
		t.Fatalf("open %s: %v", s.Path(), err)
	}
	defer db.Close()
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		t.Fatalf("busy timeout: %v", err)
	}
	if _, err := db.Exec(statement, args...); err != nil {
		t.Fatalf("exec %q: %v", statement, err)
	}
}
