// Package redisdev runs the local Redis that backs the job queues during
// development. Data lives in an append-only file under the reval home.
package redisdev

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/avast/retry-go/v4"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/go-redis/redis/v8"
)

const (
	DefaultImage         = "redis:7-alpine"
	DefaultContainerName = "reval-redis"
	DefaultPort          = "6379"
	ContainerPort        = "6379/tcp"
	DataDir              = "/data"
	Label                = "reval-redis"
)

const (
	readyTimeout = 30 * time.Second
	// Seconds Docker waits after SIGTERM; redis flushes the AOF on TERM.
	stopGraceSeconds = 10
)

// ContainerStatus is the state of the Redis container as reval reports it.
type ContainerStatus string

const (
	StatusRunning   ContainerStatus = "running"
	StatusStopped   ContainerStatus = "stopped"
	StatusNotFound  ContainerStatus = "not_found"
	StatusUnhealthy ContainerStatus = "unhealthy"
	StatusStarting  ContainerStatus = "starting"
)

// Config selects the container, image, port and data directory.
type Config struct {
	ContainerName string
	Image         string
	DataPath      string // host directory mounted at /data; empty keeps data in the container
	HostPort      string
	HomePath      string // derives the container name when ContainerName is empty
	Labels        map[string]string
}

// Manager starts and stops one Redis container.
type Manager struct {
	cli    *client.Client
	cfg    Config
	labels map[string]string
}

// GenerateContainerName derives a stable container name from a home path so
// two reval homes on one machine get separate containers.
func GenerateContainerName(homePath string) string {
	sum := sha256.Sum256([]byte(homePath))
	return DefaultContainerName + "-" + hex.EncodeToString(sum[:])[:8]
}

// NewManager connects to the local Docker daemon.
func NewManager(cfg Config) (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	switch {
	case cfg.ContainerName != "":
	case cfg.HomePath != "":
		cfg.ContainerName = GenerateContainerName(cfg.HomePath)
	default:
		cfg.ContainerName = DefaultContainerName
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.HostPort == "" {
		cfg.HostPort = DefaultPort
	}

	labels := map[string]string{Label: "true"}
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	return &Manager{cli: cli, cfg: cfg, labels: labels}, nil
}

// Close closes the Docker client.
func (m *Manager) Close() error {
	return m.cli.Close()
}

func (m *Manager) ContainerName() string {
	return m.cfg.ContainerName
}

// URL returns the value for redis.url in the reval config.
func (m *Manager) URL() string {
	return fmt.Sprintf("redis://localhost:%s/0", m.cfg.HostPort)
}

// Start creates the container if needed, starts it, and returns once Redis
// answers PING. Starting a running container only waits for readiness.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}

	info, err := m.inspect(ctx)
	if err != nil {
		return err
	}
	switch statusOf(info) {
	case StatusNotFound:
		id, err := m.create(ctx)
		if err != nil {
			return err
		}
		if err := m.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
			_ = m.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
			return fmt.Errorf("failed to start redis container: %w", err)
		}
	case StatusStopped:
		if err := m.cli.ContainerStart(ctx, info.ID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start redis container: %w", err)
		}
	}
	return m.WaitReady(ctx, readyTimeout)
}

// Stop stops a running container and leaves it in place.
func (m *Manager) Stop(ctx context.Context) error {
	info, err := m.inspect(ctx)
	if err != nil || statusOf(info) == StatusNotFound || statusOf(info) == StatusStopped {
		return err
	}
	grace := stopGraceSeconds
	if err := m.cli.ContainerStop(ctx, info.ID, container.StopOptions{Timeout: &grace}); err != nil {
		return fmt.Errorf("failed to stop redis container: %w", err)
	}
	return nil
}

// Remove stops and deletes the container. The data directory on the host
// is kept.
func (m *Manager) Remove(ctx context.Context) error {
	info, err := m.inspect(ctx)
	if err != nil || info == nil {
		return err
	}
	if err := m.Stop(ctx); err != nil {
		return err
	}
	if err := m.cli.ContainerRemove(ctx, info.ID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove redis container: %w", err)
	}
	return nil
}

// Status inspects the container. A running container whose healthcheck
// fails reports StatusUnhealthy.
func (m *Manager) Status(ctx context.Context) (ContainerStatus, error) {
	info, err := m.inspect(ctx)
	if err != nil {
		return "", err
	}
	return statusOf(info), nil
}

// Logs returns the last tail lines of redis-server output.
func (m *Manager) Logs(ctx context.Context, tail string) (string, error) {
	rc, err := m.cli.ContainerLogs(ctx, m.cfg.ContainerName, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if cerrdefs.IsNotFound(err) {
		return "", fmt.Errorf("container %s not found", m.cfg.ContainerName)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer rc.Close()

	// Non-TTY containers multiplex stdout and stderr on one stream.
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return buf.String(), nil
}

// WaitReady pings Redis once a second until it answers or timeout passes.
func (m *Manager) WaitReady(ctx context.Context, timeout time.Duration) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "localhost:" + m.cfg.HostPort,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	defer rdb.Close()

	return retry.Do(
		func() error { return rdb.Ping(ctx).Err() },
		retry.Context(ctx),
		retry.Attempts(uint(max(timeout/time.Second, 1))),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// inspect returns the container, or nil when it does not exist.
func (m *Manager) inspect(ctx context.Context) (*container.InspectResponse, error) {
	info, err := m.cli.ContainerInspect(ctx, m.cfg.ContainerName)
	if cerrdefs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", m.cfg.ContainerName, err)
	}
	return &info, nil
}

func statusOf(info *container.InspectResponse) ContainerStatus {
	if info == nil || info.ContainerJSONBase == nil || info.State == nil {
		return StatusNotFound
	}
	st := info.State
	switch {
	case st.Running && st.Health != nil && st.Health.Status == container.Unhealthy:
		return StatusUnhealthy
	case st.Running:
		return StatusRunning
	case st.Restarting, st.Status == container.StateCreated:
		return StatusStarting
	default:
		return StatusStopped
	}
}

// create makes the container, pulling the image first if Docker reports it
// missing.
func (m *Manager) create(ctx context.Context) (string, error) {
	cfg, hostCfg := m.spec()
	resp, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, m.cfg.ContainerName)
	if cerrdefs.IsNotFound(err) {
		if err := m.pull(ctx); err != nil {
			return "", err
		}
		resp, err = m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, m.cfg.ContainerName)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create redis container: %w", err)
	}
	return resp.ID, nil
}

func (m *Manager) spec() (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:        m.cfg.Image,
		Cmd:          []string{"redis-server", "--appendonly", "yes", "--dir", DataDir},
		Labels:       m.labels,
		ExposedPorts: nat.PortSet{ContainerPort: struct{}{}},
		Healthcheck: &container.HealthConfig{
			Test:        []string{"CMD", "redis-cli", "ping"},
			Interval:    2 * time.Second,
			Timeout:     5 * time.Second,
			Retries:     10,
			StartPeriod: 2 * time.Second,
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: {{HostIP: "127.0.0.1", HostPort: m.cfg.HostPort}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	if m.cfg.DataPath != "" {
		hostCfg.Mounts = []mount.Mount{{Type: mount.TypeBind, Source: m.cfg.DataPath, Target: DataDir}}
	}
	return cfg, hostCfg
}

func (m *Manager) pull(ctx context.Context) error {
	rc, err := m.cli.ImagePull(ctx, m.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", m.cfg.Image, err)
	}
	defer rc.Close()
	// The pull finishes when the progress stream is drained.
	_, err = io.Copy(io.Discard, rc)
	return err
}
