package engine_test

import (
	"testing"

	"facelane/internal/engine"
)

func TestParseProgress(t *testing.T) {
	cases := []struct {
		line    string
		ok      bool
		stage   string
		percent int
	}{
		{"processing: 42%", true, "processing", 42},
		{"finalizing: 100%", true, "finalizing", 100},
		{"[FACEFUSION.CORE] analysing:   7% |###", true, "analysing", 7},
		{"merging:\t0%", true, "merging", 0},
		{"restoring: 130%", true, "restoring", 130},
		{"hello world", false, "", 0},
		{"Processing: 42%", false, "", 0},
		{"processing 42%", false, "", 0},
		{"processing: %", false, "", 0},
		{"extracting: 99999999999999999999999%", false, "", 0},
		{"", false, "", 0},
	}
	for _, tc := range cases {
		got, ok := engine.ParseProgress(tc.line)
		if ok != tc.ok {
			t.Fatalf("ParseProgress(%q) ok = %v, want %v", tc.line, ok, tc.ok)
		}
		if ok && (got.Stage != tc.stage || got.Percent != tc.percent) {
			t.Fatalf("ParseProgress(%q) = %+v", tc.line, got)
		}
	}
}
