package engine

import (
	"fmt"
	"strings"

	"facelane/internal/services"
)

// ExitError reports a non-zero engine exit. Tail holds the last lines of
// merged output for a human readable failure message.
type ExitError struct {
	Code int
	Tail []string
}

func (e *ExitError) Error() string {
	if e == nil {
		return "engine exited"
	}
	msg := fmt.Sprintf("engine exited with code %d", e.Code)
	if len(e.Tail) > 0 {
		msg += ": " + e.Tail[len(e.Tail)-1]
	}
	return msg
}

// Is lets errors.Is(err, services.ErrEngineExit) match.
func (e *ExitError) Is(target error) bool {
	return target == services.ErrEngineExit
}

// Detail returns the full output tail joined for logs.
func (e *ExitError) Detail() string {
	if e == nil {
		return ""
	}
	return strings.Join(e.Tail, "\n")
}

// tailBuffer keeps the last n non-empty lines.
type tailBuffer struct {
	limit int
	lines []string
}

func newTailBuffer(limit int) *tailBuffer {
	if limit <= 0 {
		limit = 20
	}
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if len(b.lines) == b.limit {
		copy(b.lines, b.lines[1:])
		b.lines = b.lines[:b.limit-1]
	}
	b.lines = append(b.lines, line)
}

func (b *tailBuffer) snapshot() []string {
	return append([]string(nil), b.lines...)
}
