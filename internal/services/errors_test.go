package services_test

import (
	"errors"
	"strings"
	"testing"

	"facelane/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrEngineExit, "engine", "job-create", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrEngineExit) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"engine", "job-create", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsClientError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{services.Wrap(services.ErrNotFound, "jobs", "load", "missing", nil), true},
		{services.Wrap(services.ErrOversize, "media", "validate", "too big", nil), true},
		{services.Wrap(services.ErrConflict, "jobs", "submit", "not ready", nil), true},
		{services.Wrap(services.ErrEngineExit, "engine", "run", "exit 1", nil), false},
		{errors.New("plain"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := services.IsClientError(tc.err); got != tc.want {
			t.Fatalf("IsClientError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
