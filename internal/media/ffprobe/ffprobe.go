package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Report is the decoded ffprobe output.
type Report struct {
	Streams []Stream  `json:"streams"`
	Format  Container `json:"format"`
}

// Stream is one elementary stream.
type Stream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

// Container holds format-level fields.
type Container struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// Probe runs binary against path.
func Probe(ctx context.Context, binary, path string) (Report, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Report{}, errors.New("ffprobe: empty path")
	}
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-show_format", "-show_streams", "-of", "json", "--", path) //nolint:gosec
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Report{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Report{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return Decode(out)
}

// Decode parses ffprobe JSON output.
func Decode(data []byte) (Report, error) {
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("ffprobe decode: %w", err)
	}
	return report, nil
}

// HasVideo reports whether any stream is video.
func (r Report) HasVideo() bool {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return true
		}
	}
	return false
}

// Seconds returns the container duration, falling back to the longest
// stream duration. ok is false when no duration is reported.
func (r Report) Seconds() (float64, bool) {
	if v, ok := parseSeconds(r.Format.Duration); ok {
		return v, true
	}
	best, found := 0.0, false
	for _, s := range r.Streams {
		if v, ok := parseSeconds(s.Duration); ok && v > best {
			best, found = v, true
		}
	}
	return best, found
}

func parseSeconds(value string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
