package testsupport

import (
	"testing"

	"facelane/internal/config"
	"facelane/internal/jobs"
)

// MustOpenStore opens the configured jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
