// Package worker launches the bundled detection/reid executable and exposes
// its stdout line stream, exit status and termination to the stage handlers.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/mvetrova/trailcam/internal/common"
)

const binaryName = "care-worker"

// Invoker resolves and spawns the external AI worker.
type Invoker struct {
	overridePath string
}

func NewInvoker(overridePath string) *Invoker {
	return &Invoker{overridePath: overridePath}
}

// ResolvePath picks the worker executable for the current environment, in
// priority order: explicit override, binary bundled next to the running
// executable, local development build, bare name on PATH.
func (inv *Invoker) ResolvePath() string {
	if inv.overridePath != "" {
		return inv.overridePath
	}

	name := binaryName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	if exe, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(exe), "resources", "worker", name)
		if _, err := os.Stat(bundled); err == nil {
			return bundled
		}
	}

	dev := filepath.Join("python", "dist", "main", name)
	if _, err := os.Stat(dev); err == nil {
		return dev
	}

	return name
}

// Launch starts the worker with the given positional arguments. Spawn
// failures are returned as *common.SpawnError; they never surface through the
// stream.
func (inv *Invoker) Launch(ctx context.Context, args ...string) (*Process, error) {
	path := inv.ResolvePath()

	cmd := exec.CommandContext(ctx, path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &common.SpawnError{Path: path, Err: err}
	}

	p := &Process{cmd: cmd, stdout: stdout}
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, &common.SpawnError{Path: path, Err: err}
	}

	slog.Info("worker started", "path", path, "pid", cmd.Process.Pid, "args", args)
	return p, nil
}

// Process is a handle to one running worker invocation.
type Process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
}

// Lines returns a scanner over the worker's newline-delimited stdout
// protocol. It must be drained before Wait.
func (p *Process) Lines() *bufio.Scanner {
	return bufio.NewScanner(p.stdout)
}

// Wait blocks until the worker exits and returns its exit code. A non-zero
// code is returned with a nil error; err is reserved for wait failures.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Terminate kills the worker process. Safe to call after exit.
func (p *Process) Terminate() {
	if p.cmd.Process == nil {
		return
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Warn("failed to kill worker", "pid", p.cmd.Process.Pid, "error", err)
	}
}

// Stderr returns whatever the worker wrote to its error stream so far.
func (p *Process) Stderr() string {
	return p.stderr.String()
}
