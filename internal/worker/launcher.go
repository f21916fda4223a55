package worker

import (
	"context"
	"time"
)

// Spec describes a worker to be launched, assembled by the Supervisor from
// a spawn request plus the gateway's static config (spec.md §6, "Launch
// contract").
type Spec struct {
	WorkerID  string
	Provider  string
	HostPort  int
	InnerPort int
	Model     string

	WorkspaceDir string // bind-mounted read/write
	PromptsDir   string // bind-mounted read-only

	Env map[string]string

	Image  string // containerd launcher
	Binary string // subprocess launcher
}

// Handle is an opaque launcher-specific reference to a running worker
// (a containerd task id, or a subprocess's *exec.Cmd wrapper). Only the
// Launcher that produced it may be used to Stop or read Logs from it.
type Handle interface {
	// Alive reports whether the underlying process/container is still
	// running, independent of any application-level health check
	// (spec.md §4.5 step 1).
	Alive(ctx context.Context) bool
}

// Launcher starts and stops the OS-level artifact (container or
// subprocess) backing a Worker. Open Question 1 in spec.md treats the
// container variant as authoritative; Launcher lets both live behind one
// interface.
type Launcher interface {
	// Launch starts the worker artifact and returns a handle to it. It
	// does not wait for the worker to become ready — that is the
	// Supervisor's job via health polling.
	Launch(ctx context.Context, spec Spec) (Handle, error)

	// Stop sends a graceful termination signal and waits up to grace
	// before escalating to a forceful kill (spec.md §4.2).
	Stop(ctx context.Context, handle Handle, grace time.Duration) error

	// Logs returns up to tail trailing lines of the worker's output.
	// tail <= 0 means "all buffered output".
	Logs(ctx context.Context, handle Handle, tail int) ([]string, error)

	// CleanupStale removes any leftover artifact from a previous gateway
	// run matching the naming prefix, called once at gateway start
	// (spec.md §4.2).
	CleanupStale(ctx context.Context, prefix string) error
}
