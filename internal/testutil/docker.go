// Package testutil holds helpers shared by package tests: an in-memory Redis
// and throwaway Docker containers that are removed when the test ends.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
)

// CleanupLabel is set on every container a test creates. Its value is the
// test name, so parallel tests only remove their own containers.
const CleanupLabel = "reval-test"

const maxNameLen = 30

// TestingT is the part of *testing.T the Docker helpers need.
type TestingT interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	Helper()
}

// DockerClient returns a client for the local daemon and removes the test's
// labelled containers on cleanup. Skips the test when Docker is unreachable.
func DockerClient(t TestingT) *client.Client {
	t.Helper()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		t.Skipf("docker is not running: %v", err)
	}

	t.Cleanup(func() {
		removeTestContainers(t, cli)
		_ = cli.Close()
	})
	return cli
}

// UniqueContainerName returns reval-test-<prefix>-<test>-<suffix>.
func UniqueContainerName(t TestingT, prefix string) string {
	t.Helper()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s-%s", CleanupLabel, prefix, containerSafe(t.Name()), suffix)
}

// ContainerLabels returns the labels that mark a container for cleanup.
func ContainerLabels(t TestingT) map[string]string {
	return map[string]string{CleanupLabel: t.Name()}
}

func removeTestContainers(t TestingT, cli *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	list, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", CleanupLabel+"="+t.Name())),
	})
	if err != nil {
		t.Logf("list test containers: %v", err)
		return
	}

	for _, c := range list {
		// Force also stops a running container.
		err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
		if err != nil {
			t.Logf("remove container %s: %v", c.ID[:12], err)
		}
	}
}

// containerSafe maps a test name onto the characters Docker accepts in a
// container name.
func containerSafe(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '/', r == '_', r == '-':
			return '-'
		}
		return -1
	}, name)
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	return out
}
