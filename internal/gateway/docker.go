package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

const (
	labelManagedBy   = "aida.managed-by"
	labelCapability  = "aida.capability"
	managedByValue   = "aida"
	defaultRunnerImg = "aida/capability-runner:latest"
)

// DockerGateway runs each capability as a one-shot container of a runner
// image. The container's command line mirrors the exec gateway's driver
// convention: capability name, then --key=value parameters.
//
// The context deadline is the hard bound: when it expires the container is
// force-removed and ErrTimeout returned.
type DockerGateway struct {
	client *dockerclient.Client
	image  string
}

// NewDockerGateway creates a gateway that talks to the local Docker Engine
// (DOCKER_HOST or the default socket). image selects the capability runner
// image; empty picks the default.
func NewDockerGateway(image string) (*DockerGateway, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway: docker client: %w", err)
	}
	if image == "" {
		image = defaultRunnerImg
	}
	return &DockerGateway{client: cli, image: image}, nil
}

// Invoke creates, starts, and waits for a one-shot capability container,
// returning its stdout. The container is always removed, success or not.
func (g *DockerGateway) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	containerName := fmt.Sprintf("aida-%s-%s", inv.Capability, uuid.New().String()[:8])

	env := []string{
		fmt.Sprintf("AIDA_CAPABILITY=%s", inv.Capability),
	}
	for k, v := range inv.Parameters {
		env = append(env, fmt.Sprintf("AIDA_PARAM_%s=%s", strings.ToUpper(k), v))
	}

	containerCfg := &container.Config{
		Image: g.image,
		Cmd:   append([]string{inv.Capability}, paramArgs(inv.Parameters)...),
		Env:   env,
		Labels: map[string]string{
			labelManagedBy:  managedByValue,
			labelCapability: inv.Capability,
		},
	}

	resp, err := g.client.ContainerCreate(ctx, containerCfg, &container.HostConfig{}, nil, nil, containerName)
	if err != nil {
		return Result{}, fmt.Errorf("gateway: create container: %w", err)
	}
	// Always clean up, including on the timeout path. Removal uses a fresh
	// context because the request context is likely already expired.
	defer func() {
		_ = g.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}()

	if err := g.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("gateway: start container: %w", err)
	}

	waitCh, errCh := g.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w: %s", ErrTimeout, inv.Capability)
		}
		return Result{}, ctx.Err()
	case err := <-errCh:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w: %s", ErrTimeout, inv.Capability)
		}
		return Result{}, fmt.Errorf("gateway: wait for container: %w", err)
	case status := <-waitCh:
		exitCode = status.StatusCode
	}

	stdout, stderr, err := g.containerOutput(ctx, resp.ID)
	if err != nil {
		return Result{}, err
	}

	if exitCode != 0 {
		reason := stderr
		if reason == "" {
			reason = stdout
		}
		if reason == "" {
			reason = fmt.Sprintf("exit code %d", exitCode)
		}
		return Result{}, &Error{Capability: inv.Capability, Reason: reason}
	}
	return Result{Output: stdout}, nil
}

// containerOutput demultiplexes the container's log stream into stdout and
// stderr text.
func (g *DockerGateway) containerOutput(ctx context.Context, id string) (string, string, error) {
	logs, err := g.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("gateway: container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", "", fmt.Errorf("gateway: read container logs: %w", err)
	}
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), nil
}

var _ Gateway = (*DockerGateway)(nil)
