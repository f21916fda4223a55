package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"

	"github.com/cockroachdb/errors"
	"github.com/hackstrix/zeusgate/internal/logging"
)

const (
	// containerdNamespace isolates zeusgate's containers from any other
	// containerd tenant on the same host.
	containerdNamespace = "zeusgate"

	// namingPrefix marks every container zeusgate creates, so
	// cleanupStale can find and remove leftovers from a previous run
	// (spec.md §4.2).
	namingPrefix = "zeus-"
)

// ContainerdLauncher launches one container per worker, the authoritative
// path per spec.md §9 Open Question 1. Grounded on cuemby/warren's
// pkg/runtime/containerd.go (client.NewContainer + NewTask + oci.SpecOpts).
type ContainerdLauncher struct {
	client *containerd.Client
	logger zerolog.Logger
	logDir string
}

// NewContainerdLauncher dials the containerd socket at socketPath. logDir
// holds one log file per container (task IO is redirected there via
// cio.LogFile so Logs can tail it); an empty logDir defaults to
// "<os.TempDir()>/zeusgate-logs".
func NewContainerdLauncher(socketPath, logDir string) (*ContainerdLauncher, error) {
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, errors.Wrap(err, "connect to containerd")
	}
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), "zeusgate-logs")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create containerd log directory")
	}
	return &ContainerdLauncher{
		client: client,
		logger: logging.WithComponent("launcher.containerd"),
		logDir: logDir,
	}, nil
}

// Close releases the containerd client connection.
func (l *ContainerdLauncher) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

type containerdHandle struct {
	container containerd.Container
	task      containerd.Task
	logPath   string
}

func (h *containerdHandle) Alive(ctx context.Context) bool {
	if h.task == nil {
		return false
	}
	status, err := h.task.Status(ctx)
	if err != nil {
		return false
	}
	return status.Status == containerd.Running
}

// Launch creates and starts a container for spec: host↔inner port mapping
// via shared host networking plus a PORT env var, the workspace directory
// bind-mounted read/write, and the shared prompts directory bind-mounted
// read-only so ConfigStore writes take effect (spec.md §6).
func (l *ContainerdLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	ctx = namespaces.WithNamespace(ctx, containerdNamespace)

	image, err := l.client.GetImage(ctx, spec.Image)
	if err != nil {
		image, err = l.client.Pull(ctx, spec.Image, containerd.WithPullUnpack)
		if err != nil {
			return nil, errors.Wrapf(err, "pull image %s", spec.Image)
		}
	}

	env := []string{
		fmt.Sprintf("PORT=%d", spec.InnerPort),
		"WORKSPACE=/workspace",
		"PROMPTS_DIR=/prompts",
	}
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	mounts := []specs.Mount{
		{
			Source:      spec.WorkspaceDir,
			Destination: "/workspace",
			Type:        "bind",
			Options:     []string{"rbind", "rw"},
		},
		{
			Source:      spec.PromptsDir,
			Destination: "/prompts",
			Type:        "bind",
			Options:     []string{"rbind", "ro"},
		},
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
		oci.WithMounts(mounts),
		oci.WithHostNamespace(specs.NetworkNamespace), // host↔inner port mapping via shared networking
	}

	containerID := namingPrefix + spec.WorkerID
	container, err := l.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "create container %s", containerID)
	}

	logPath := filepath.Join(l.logDir, containerID+".log")
	task, err := container.NewTask(ctx, cio.LogFile(logPath))
	if err != nil {
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, errors.Wrapf(err, "create task for %s", containerID)
	}
	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx)
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, errors.Wrapf(err, "start task for %s", containerID)
	}

	l.logger.Info().
		Str("worker_id", spec.WorkerID).
		Str("container_id", containerID).
		Int("host_port", spec.HostPort).
		Msg("container worker started")

	return &containerdHandle{container: container, task: task, logPath: logPath}, nil
}

// Stop issues SIGTERM and waits up to grace before SIGKILL, then deletes
// the task and container + snapshot (spec.md §4.2).
func (l *ContainerdLauncher) Stop(ctx context.Context, handle Handle, grace time.Duration) error {
	h, ok := handle.(*containerdHandle)
	if !ok {
		return errors.New("containerd launcher: wrong handle type")
	}
	ctx = namespaces.WithNamespace(ctx, containerdNamespace)

	if h.task != nil {
		exitCh, err := h.task.Wait(ctx)
		if err == nil {
			if killErr := h.task.Kill(ctx, syscall.SIGTERM); killErr == nil {
				select {
				case <-exitCh:
				case <-time.After(grace):
					_ = h.task.Kill(ctx, syscall.SIGKILL)
					<-exitCh
				}
			}
		}
		_, _ = h.task.Delete(ctx)
	}
	if h.container != nil {
		return errors.Wrap(h.container.Delete(ctx, containerd.WithSnapshotCleanup), "delete container")
	}
	return nil
}

// Logs tails the container's log file, which the task's stdout/stderr
// were redirected to via cio.LogFile at launch.
func (l *ContainerdLauncher) Logs(ctx context.Context, handle Handle, tail int) ([]string, error) {
	h, ok := handle.(*containerdHandle)
	if !ok {
		return nil, errors.New("containerd launcher: wrong handle type")
	}
	if h.logPath == "" {
		return nil, errors.New("containerd launcher: no log file for this task")
	}

	f, err := os.Open(h.logPath)
	if err != nil {
		return nil, errors.Wrap(err, "open container log file")
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read container log file")
	}

	if tail <= 0 || tail > len(lines) {
		return lines, nil
	}
	return lines[len(lines)-tail:], nil
}

// CleanupStale removes containers left over from a previous gateway run
// (spec.md §4.2): every container in our namespace whose id starts with
// prefix, including any this process created itself.
func (l *ContainerdLauncher) CleanupStale(ctx context.Context, prefix string) error {
	ctx = namespaces.WithNamespace(ctx, containerdNamespace)

	containers, err := l.client.Containers(ctx)
	if err != nil {
		return errors.Wrap(err, "list containers")
	}
	for _, c := range containers {
		if !strings.HasPrefix(c.ID(), prefix) {
			continue
		}
		if task, err := c.Task(ctx, nil); err == nil {
			_, _ = task.Delete(ctx, containerd.WithProcessKill)
		}
		if err := c.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
			l.logger.Warn().Err(err).Str("container_id", c.ID()).Msg("failed to clean up stale container")
		}
	}
	return nil
}
