package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"facelane/internal/bus"
	"facelane/internal/config"
	"facelane/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFile verifies that a regular file exists and is readable.
func CheckFile(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckBus dials the NATS server once and disconnects.
func CheckBus(ctx context.Context, url string) Result {
	const name = "Event bus"

	type dialResult struct {
		client *bus.Client
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		client, err := bus.Connect(url, "facelane-preflight", "")
		done <- dialResult{client: client, err: err}
	}()

	checkCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	select {
	case res := <-done:
		if res.err != nil {
			return Result{Name: name, Detail: summarizeDialError(res.err)}
		}
		res.client.Close()
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", url)}
	case <-checkCtx.Done():
		return Result{Name: name, Detail: summarizeDialError(checkCtx.Err())}
	}
}

// CheckSystemDeps evaluates the external binaries for the given config. Both
// the daemon dependency snapshot and the doctor command use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Python",
			Command:     cfg.Engine.Python,
			Description: "Runs the face swap engine",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Limits.FFprobeBinary,
			Description: "Enforces the video duration limit",
			Optional:    true,
		},
	}
	return deps.CheckBinaries(requirements)
}

func summarizeDialError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "connection timed out"
	}
	return err.Error()
}
