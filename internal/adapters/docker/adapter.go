package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/samber/lo"

	"github.com/melih/oldcc/internal/core/domain"
	"github.com/melih/oldcc/internal/logging"
)

const (
	// ManagedLabel marks containers created by oldcc.
	ManagedLabel = "oldcc.managed"

	pingTimeout      = 5 * time.Second
	execPollInterval = 50 * time.Millisecond
)

// dockerAPI is the subset of the Docker client used by the adapter.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, container.PathStat, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	Close() error
}

// Adapter implements ports.ContainerEngine using Docker SDK
type Adapter struct {
	cli         dockerAPI
	stopTimeout time.Duration
}

// NewAdapter creates a new Docker adapter instance and checks the daemon answers.
func NewAdapter(ctx context.Context, stopTimeout time.Duration) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon is not available: %w", err)
	}

	return newAdapter(cli, stopTimeout), nil
}

func newAdapter(cli dockerAPI, stopTimeout time.Duration) *Adapter {
	return &Adapter{cli: cli, stopTimeout: stopTimeout}
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// ListContainers returns every container carrying the oldcc label, running or not.
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Container, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ManagedLabel+"=true")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		// Use the first name if available, remove slash
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0][1:]
		}

		result = append(result, domain.Container{
			ID:     shortID(c.ID),
			Name:   name,
			Image:  c.Image,
			Status: c.Status,
			State:  string(c.State),
		})
	}
	return result, nil
}

// CreateContainer creates a container from spec without starting it.
func (a *Adapter) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	labels := lo.Assign(spec.Labels, map[string]string{ManagedLabel: "true"})

	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:     spec.Image,
		Cmd:       spec.Cmd,
		Tty:       spec.Tty,
		OpenStdin: spec.Tty,
		Labels:    labels,
	}, nil, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	for _, w := range resp.Warnings {
		logging.From(ctx).Warn("container create warning", "container_id", shortID(resp.ID), "warning", w)
	}
	return resp.ID, nil
}

func (a *Adapter) StartContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// StopContainer stops a running container
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	timeout := int(a.stopTimeout.Seconds())
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// RemoveContainer force-removes a container; removing a container that is
// already gone is not an error.
func (a *Adapter) RemoveContainer(ctx context.Context, id string) error {
	err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// CopyTo extracts the tar stream into dstDir inside the container.
func (a *Adapter) CopyTo(ctx context.Context, id string, dstDir string, archive io.Reader) error {
	err := a.cli.CopyToContainer(ctx, id, dstDir, archive, container.CopyToContainerOptions{
		AllowOverwriteDirWithFile: true,
	})
	if err != nil {
		return fmt.Errorf("%w: copy to %s: %w", domain.ErrTransfer, dstDir, err)
	}
	return nil
}

// CopyFrom returns srcPath as a tar stream. The caller closes it.
func (a *Adapter) CopyFrom(ctx context.Context, id string, srcPath string) (io.ReadCloser, error) {
	rc, stat, err := a.cli.CopyFromContainer(ctx, id, srcPath)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactMissing, srcPath)
		}
		return nil, fmt.Errorf("%w: copy from %s: %w", domain.ErrTransfer, srcPath, err)
	}

	logging.From(ctx).Debug("copying from container", "path", srcPath, "size", stat.Size, "mode", stat.Mode)
	return rc, nil
}

// Exec runs cmd inside the container and waits for it to finish.
// Stdout and stderr are collected into one buffer.
func (a *Adapter) Exec(ctx context.Context, id string, cmd []string) (*domain.ExecResult, error) {
	created, err := a.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attached, err := a.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attached.Close()

	var output bytes.Buffer
	outputDone := make(chan error, 1)

	go func() {
		// StdCopy demultiplexes the stream; both halves land in one buffer
		_, err := stdcopy.StdCopy(&output, &output, attached.Reader)
		outputDone <- err
	}()

	select {
	case err := <-outputDone:
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read exec output: %w", err)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("exec interrupted: %w", ctx.Err())
	}

	inspect, err := a.waitExec(ctx, created.ID)
	if err != nil {
		return nil, err
	}

	return &domain.ExecResult{Output: output.Bytes(), ExitCode: inspect.ExitCode}, nil
}

// waitExec inspects the exec until the daemon stops reporting it as running.
// The exit code is only meaningful after that.
func (a *Adapter) waitExec(ctx context.Context, execID string) (container.ExecInspect, error) {
	for {
		inspect, err := a.cli.ContainerExecInspect(ctx, execID)
		if err != nil {
			return container.ExecInspect{}, fmt.Errorf("failed to inspect exec: %w", err)
		}
		if !inspect.Running {
			return inspect, nil
		}

		select {
		case <-ctx.Done():
			return container.ExecInspect{}, fmt.Errorf("exec interrupted: %w", ctx.Err())
		case <-time.After(execPollInterval):
		}
	}
}

// ImageTags returns every repo tag known to the engine.
func (a *Adapter) ImageTags(ctx context.Context) ([]string, error) {
	images, err := a.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return lo.FlatMap(images, func(img image.Summary, _ int) []string {
		return img.RepoTags
	}), nil
}

// BuildImage starts an image build and returns the JSON message stream.
func (a *Adapter) BuildImage(ctx context.Context, buildContext io.Reader, tag string) (io.ReadCloser, error) {
	resp, err := a.cli.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  "Dockerfile",
		Remove:      true, // Remove intermediate containers
		ForceRemove: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build image: %w", err)
	}
	return resp.Body, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
