package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"facelane/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every derived path is filled in so callers never depend on the environment.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		DataDir:   base,
		JobsDir:   filepath.Join(base, "jobs"),
		SourceDir: filepath.Join(base, "sources"),
		TargetDir: filepath.Join(base, "targets"),
		OutputDir: filepath.Join(base, "outputs"),
		LogDir:    filepath.Join(base, "logs"),
	}
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Engine.WorkDir = filepath.Join(base, "engine")
	cfgVal.Engine.JobsPath = filepath.Join(base, "engine-jobs")
	cfgVal.Engine.ConfigPath = filepath.Join(base, "engine", "facefusion.ini")
	cfgVal.Store.SQLitePath = filepath.Join(base, "jobs.db")
	cfgVal.Events.PollIntervalMillis = 20
	cfgVal.Webhook.RequestTimeout = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := os.MkdirAll(builder.cfg.Engine.WorkDir, 0o755); err != nil {
		t.Fatalf("mkdir engine dir: %v", err)
	}
	return builder.cfg
}

// WithSQLiteStore switches the store backend to SQLite.
func WithSQLiteStore() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = "sqlite"
	}
}

// WithAPIToken sets the static bearer token.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithJWTSecret enables JWT authentication with the given HMAC secret.
func WithJWTSecret(secret string, required bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.JWTSecret = secret
		b.cfg.API.JWTRequired = required
	}
}

// WithEngineScript writes a shell script standing in for the engine and
// points the config at it. The script receives the engine arguments
// unchanged, starting with the subcommand.
func WithEngineScript(body string) ConfigOption {
	return func(b *configBuilder) {
		dir := filepath.Join(b.baseDir, "engine")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.t.Fatalf("mkdir engine dir: %v", err)
		}
		script := filepath.Join(dir, "facefusion.sh")
		if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
			b.t.Fatalf("write engine stub: %v", err)
		}
		b.cfg.Engine.Python = "/bin/sh"
		b.cfg.Engine.Script = script
		b.cfg.Engine.WorkDir = dir
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffprobe is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}

// fakeEngine records the output path at job-add-step and writes it on
// job-run after reporting progress.
const fakeEngine = `cmd="$1"; id="$2"; shift 2
out=""; jobs=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    --jobs-path) jobs="$2"; shift 2 ;;
    *) shift ;;
  esac
done
case "$cmd" in
  job-add-step)
    mkdir -p "$jobs"
    printf '%s' "$out" > "$jobs/$id.out"
    ;;
  job-run)
    echo "analysing: 10%"
    echo "processing: 60%"
    printf 'swapped' > "$(cat "$jobs/$id.out")"
    echo "processing: 100%"
    ;;
esac
exit 0`

// WithFakeEngine installs an engine script that accepts every job and
// produces a small output file when run.
func WithFakeEngine() ConfigOption {
	return WithEngineScript(fakeEngine)
}
