package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/hackstrix/zeusgate/internal/logging"
)

// SubprocessLauncher runs each worker as a plain OS subprocess, the
// degenerate path spec.md §9 Open Question 1 permits: no image build, no
// bind mounts; the workspace and prompts directories are passed as
// environment variables alongside PORT. Grounded directly on
// the teacher's worker.go (exec.Command + cmd.Wait() monitor goroutine).
type SubprocessLauncher struct {
	logger zerolog.Logger
}

// NewSubprocessLauncher constructs a SubprocessLauncher.
func NewSubprocessLauncher() *SubprocessLauncher {
	return &SubprocessLauncher{logger: logging.WithComponent("launcher.subprocess")}
}

// subprocessHandle wraps a running *exec.Cmd and its captured log ring
// buffer (get_logs support for the subprocess path, spec.md §4.8).
type subprocessHandle struct {
	cmd  *exec.Cmd
	logs *ringBuffer

	mu   sync.Mutex
	done bool
}

func (h *subprocessHandle) Alive(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done || h.cmd.Process == nil {
		return false
	}
	return probeAlive(h.cmd.Process)
}

// Launch starts the worker binary with PORT/WORKSPACE/PROMPTS_DIR and any
// provider-specific env vars set (spec.md §6 "Launch contract", minus the
// container-only fields).
func (l *SubprocessLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	binary := spec.Binary
	if binary == "" {
		return nil, errors.New("subprocess launcher: spec.Binary is required")
	}

	cmd := exec.Command(binary)
	env := os.Environ()
	env = append(env,
		"PORT="+strconv.Itoa(spec.InnerPort),
		"WORKSPACE="+spec.WorkspaceDir,
		"PROMPTS_DIR="+spec.PromptsDir,
	)
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	rb := newRingBuffer(1000)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "subprocess launcher: stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "subprocess launcher: stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "subprocess launcher: start worker %s", spec.WorkerID)
	}

	h := &subprocessHandle{cmd: cmd, logs: rb}
	go drainToRingBuffer(stdout, rb)
	go drainToRingBuffer(stderr, rb)
	go func() {
		_ = cmd.Wait()
		h.mu.Lock()
		h.done = true
		h.mu.Unlock()
	}()

	l.logger.Info().
		Str("worker_id", spec.WorkerID).
		Int("port", spec.HostPort).
		Int("pid", cmd.Process.Pid).
		Msg("subprocess worker started")

	return h, nil
}

// Stop sends a graceful termination signal (SIGTERM; a kill on Windows)
// and waits up to grace before killing.
func (l *SubprocessLauncher) Stop(ctx context.Context, handle Handle, grace time.Duration) error {
	h, ok := handle.(*subprocessHandle)
	if !ok {
		return errors.New("subprocess launcher: wrong handle type")
	}

	h.mu.Lock()
	alreadyDone := h.done
	proc := h.cmd.Process
	h.mu.Unlock()
	if alreadyDone || proc == nil {
		return nil
	}

	requestGracefulStop(proc)

	deadline := time.After(grace)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			_ = proc.Kill()
			return nil
		case <-tick.C:
			h.mu.Lock()
			done := h.done
			h.mu.Unlock()
			if done {
				return nil
			}
		case <-ctx.Done():
			_ = proc.Kill()
			return nil
		}
	}
}

// Logs returns the tail of the captured stdout/stderr ring buffer.
func (l *SubprocessLauncher) Logs(ctx context.Context, handle Handle, tail int) ([]string, error) {
	h, ok := handle.(*subprocessHandle)
	if !ok {
		return nil, errors.New("subprocess launcher: wrong handle type")
	}
	return h.logs.Tail(tail), nil
}

// CleanupStale is a no-op for subprocesses: there is no persistent OS
// artifact naming scheme to scan (processes die with their parent or are
// reaped on next health check).
func (l *SubprocessLauncher) CleanupStale(ctx context.Context, prefix string) error {
	return nil
}

// ringBuffer is a fixed-capacity FIFO of log lines for get_logs support.
type ringBuffer struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{cap: capacity, lines: make([]string, 0, capacity)}
}

func (r *ringBuffer) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.cap {
		r.lines = r.lines[len(r.lines)-r.cap:]
	}
}

func (r *ringBuffer) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.lines) {
		out := make([]string, len(r.lines))
		copy(out, r.lines)
		return out
	}
	out := make([]string, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}

func drainToRingBuffer(r io.Reader, rb *ringBuffer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rb.Append(scanner.Text())
	}
}
