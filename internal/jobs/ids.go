package jobs

import (
	"strings"

	"github.com/google/uuid"
)

const idEntropy = 12

// NewID returns a lane-prefixed job identifier such as vid-1f0c2a9be4d1.
func NewID(kind TargetKind) string {
	prefix := "img"
	if kind == KindVideo {
		prefix = "vid"
	}
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + hex[:idEntropy]
}

// KindFromID recovers the lane encoded in a job identifier.
func KindFromID(id string) (TargetKind, bool) {
	switch {
	case strings.HasPrefix(id, "img-"):
		return KindImage, true
	case strings.HasPrefix(id, "vid-"):
		return KindVideo, true
	default:
		return "", false
	}
}

// ValidID reports whether id has the shape produced by NewID. It keeps
// caller-supplied identifiers from escaping the jobs directory.
func ValidID(id string) bool {
	if _, ok := KindFromID(id); !ok {
		return false
	}
	rest := id[4:]
	if len(rest) != idEntropy {
		return false
	}
	for _, r := range rest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
