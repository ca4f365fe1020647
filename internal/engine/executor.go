package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Command describes one engine invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	// Grace is how long the process group has between SIGTERM and SIGKILL
	// once the context ends.
	Grace time.Duration
}

// Executor abstracts process execution for testability.
type Executor interface {
	Run(ctx context.Context, cmd Command, onLine func(string)) error
}

const (
	maxLineBytes = 1 << 20
	defaultGrace = 10 * time.Second
)

type commandExecutor struct{}

// Run starts the engine in its own process group so that helpers it spawns
// are signalled with it. Output of stdout and stderr is scanned as one stream.
func (commandExecutor) Run(ctx context.Context, spec Command, onLine func(string)) error {
	grace := spec.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		pgid := -cmd.Process.Pid
		time.AfterFunc(grace, func() { _ = unix.Kill(pgid, unix.SIGKILL) })
		return unix.Kill(pgid, unix.SIGTERM)
	}
	// Bounds how long Wait lingers on a pipe still held by a stray descendant.
	cmd.WaitDelay = grace + time.Second

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return fmt.Errorf("start engine: %w", err)
	}

	scanned := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		scanner.Split(scanTerminalLines)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
		err := scanner.Err()
		if err != nil {
			_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
			_, _ = io.Copy(io.Discard, pr)
		}
		scanned <- err
	}()

	waitErr := cmd.Wait()
	_ = pw.Close()
	scanErr := <-scanned

	var exitErr *exec.ExitError
	switch {
	case waitErr != nil && ctx.Err() != nil:
		return fmt.Errorf("engine interrupted: %w", ctx.Err())
	case scanErr != nil:
		return fmt.Errorf("scan engine output: %w", scanErr)
	case errors.As(waitErr, &exitErr):
		return &ExitError{Code: exitErr.ExitCode()}
	case errors.Is(waitErr, exec.ErrWaitDelay):
		// The engine exited cleanly; a descendant kept the output open.
		return nil
	case waitErr != nil:
		return fmt.Errorf("wait engine: %w", waitErr)
	}
	return nil
}

// scanTerminalLines splits on \n, \r\n and bare \r so carriage-return
// progress bars yield one line per redraw.
func scanTerminalLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					advance++
				}
			} else if !atEOF {
				return 0, nil, nil
			}
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
