package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"facelane/internal/config"
	"facelane/internal/fileutil"
	"facelane/internal/jobs"
	"facelane/internal/media/ffprobe"
	"facelane/internal/services"
)

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png"}
	videoExtensions = []string{".mp4", ".mov"}
)

// KindForName classifies a file name by extension.
func KindForName(name string) (jobs.TargetKind, string, bool) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	switch {
	case slices.Contains(imageExtensions, ext):
		return jobs.KindImage, ext, true
	case slices.Contains(videoExtensions, ext):
		return jobs.KindVideo, ext, true
	default:
		return "", ext, false
	}
}

// DurationProbe returns the playing time of a video file.
type DurationProbe func(ctx context.Context, path string) (time.Duration, bool, error)

// Option configures a Store.
type Option func(*Store)

// WithDurationProbe replaces the ffprobe-backed probe (tests).
func WithDurationProbe(p DurationProbe) Option {
	return func(s *Store) {
		if p != nil {
			s.probe = p
		}
	}
}

// Store writes validated artifacts into the configured directories.
type Store struct {
	sourceDir   string
	targetDir   string
	outputDir   string
	maxImage    int64
	maxVideo    int64
	maxDuration time.Duration
	probe       DurationProbe
}

// NewStore builds an artifact store from configuration.
func NewStore(cfg *config.Config, opts ...Option) *Store {
	binary := cfg.Limits.FFprobeBinary
	s := &Store{
		sourceDir:   cfg.Paths.SourceDir,
		targetDir:   cfg.Paths.TargetDir,
		outputDir:   cfg.Paths.OutputDir,
		maxImage:    int64(cfg.Limits.MaxImageMB) << 20,
		maxVideo:    int64(cfg.Limits.MaxVideoMB) << 20,
		maxDuration: time.Duration(cfg.Limits.MaxVideoSeconds) * time.Second,
		probe: func(ctx context.Context, path string) (time.Duration, bool, error) {
			report, err := ffprobe.Probe(ctx, binary, path)
			if err != nil {
				return 0, false, err
			}
			secs, ok := report.Seconds()
			return time.Duration(secs * float64(time.Second)), ok, nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveSource stores a source face image and returns its path.
func (s *Store) SaveSource(ctx context.Context, name string, r io.Reader) (string, error) {
	kind, ext, ok := KindForName(name)
	if !ok || kind != jobs.KindImage {
		return "", services.Wrap(services.ErrValidation, "media", "save source", "source must be jpg/jpeg/png", nil)
	}
	return s.write(ctx, s.sourceDir, ext, kind, r)
}

// SaveTarget stores a target artifact whose kind must equal want.
func (s *Store) SaveTarget(ctx context.Context, name string, want jobs.TargetKind, r io.Reader) (string, error) {
	kind, ext, ok := KindForName(name)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "media", "save target", "target must be jpg/jpeg/png or mp4/mov", nil)
	}
	if kind != want {
		return "", services.Wrap(services.ErrValidation, "media", "save target", fmt.Sprintf("target type must be %s", want), nil)
	}
	return s.write(ctx, s.targetDir, ext, kind, r)
}

func (s *Store) write(ctx context.Context, dir, ext string, kind jobs.TargetKind, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	limit := s.maxImage
	if kind == jobs.KindVideo {
		limit = s.maxVideo
	}
	dest := filepath.Join(dir, randomName()+ext)
	if _, err := fileutil.CopyLimited(dest, r, limit); err != nil {
		if errors.Is(err, fileutil.ErrTooLarge) {
			return "", services.Wrap(services.ErrOversize, "media", "save artifact",
				fmt.Sprintf("file too large (max %d MB)", limit>>20), err)
		}
		return "", fmt.Errorf("store artifact: %w", err)
	}
	if kind == jobs.KindVideo && s.maxDuration > 0 {
		if err := s.checkDuration(ctx, dest); err != nil {
			_ = os.Remove(dest)
			return "", err
		}
	}
	return dest, nil
}

// checkDuration rejects videos longer than the limit. Files the probe cannot
// read are accepted; the engine reports unreadable media itself.
func (s *Store) checkDuration(ctx context.Context, path string) error {
	length, ok, err := s.probe(ctx, path)
	if err != nil || !ok {
		return nil
	}
	if length > s.maxDuration {
		return services.Wrap(services.ErrOversize, "media", "check duration",
			fmt.Sprintf("video too long (max %s)", s.maxDuration), nil)
	}
	return nil
}

// OutputPath plans a unique output file with the target's extension.
func (s *Store) OutputPath(targetPath string) string {
	ext := strings.ToLower(filepath.Ext(targetPath))
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(s.outputDir, randomName()+ext)
}

func randomName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
