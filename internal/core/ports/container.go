package ports

import (
	"context"
	"io"

	"github.com/melih/oldcc/internal/core/domain"
)

// ContainerEngine defines the container operations a compile run needs.
// The Docker adapter implements it; tests substitute an in-memory fake.
type ContainerEngine interface {
	CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	ListContainers(ctx context.Context) ([]domain.Container, error)

	// CopyTo extracts a tar stream into dstDir inside the container.
	CopyTo(ctx context.Context, id string, dstDir string, archive io.Reader) error
	// CopyFrom returns srcPath from the container as a tar stream.
	CopyFrom(ctx context.Context, id string, srcPath string) (io.ReadCloser, error)

	Exec(ctx context.Context, id string, cmd []string) (*domain.ExecResult, error)
}
