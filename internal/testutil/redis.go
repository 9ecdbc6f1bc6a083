package testutil

import (
	"fmt"
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// Redis starts an in-memory Redis for the test and returns a client bound to it.
// Both are shut down when the test ends.
func Redis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

// RedisContainerConfig holds settings for a throwaway Redis container without
// importing redisdev.
type RedisContainerConfig struct {
	ContainerName string
	HostPort      string
	DataPath      string
	Labels        map[string]string
}

// NewRedisContainerConfig registers Docker cleanup and picks a free port and
// unique name for a test container. Skips when Docker is unavailable.
func NewRedisContainerConfig(t *testing.T) RedisContainerConfig {
	t.Helper()
	_ = DockerClient(t)

	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	return RedisContainerConfig{
		ContainerName: UniqueContainerName(t, "redis"),
		HostPort:      port,
		DataPath:      t.TempDir(),
		Labels:        ContainerLabels(t),
	}
}

// FindFreePort finds an available TCP port and returns it as a string.
func FindFreePort() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer listener.Close()
	return fmt.Sprintf("%d", listener.Addr().(*net.TCPAddr).Port), nil
}
