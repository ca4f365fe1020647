package engine

import (
	"regexp"
	"strconv"
)

// Progress is one stage/percent report emitted by the engine.
type Progress struct {
	Stage   string
	Percent int
}

var progressPattern = regexp.MustCompile(`(analysing|extracting|processing|merging|restoring|finalizing):\s+(\d+)%`)

// ParseProgress extracts a progress report from a line of engine output.
// Percent values are returned as emitted; callers clamp when storing.
func ParseProgress(line string) (Progress, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return Progress{}, false
	}
	percent, err := strconv.Atoi(match[2])
	if err != nil {
		return Progress{}, false
	}
	return Progress{Stage: match[1], Percent: percent}, true
}
