package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	for _, size := range []int{0, -3} {
		s := NewProgressSampler(size)
		if s.bucketSize != 10 {
			t.Fatalf("bucketSize = %d, want 10", s.bucketSize)
		}
		if s.lastBucket != -1 {
			t.Fatalf("lastBucket = %d, want -1", s.lastBucket)
		}
	}
}

func TestProgressSamplerNilAlwaysLogs(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog("processing", 3) {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		stage   string
		percent int
		want    bool
	}{
		{"extracting", 0, true},
		{"extracting", 10, false},
		{"extracting", 26, true},
		{"extracting", 30, false},
		{"processing", 30, true},
		{"processing", 40, false},
		{"processing", 100, true},
		{"processing", 140, false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.stage, step.percent); got != step.want {
			t.Fatalf("step %d (%s %d): got %v want %v", i, step.stage, step.percent, got, step.want)
		}
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(50)
	s.ShouldLog("merging", 60)
	s.Reset()
	if !s.ShouldLog("merging", 60) {
		t.Fatal("expected emit after reset")
	}
}
