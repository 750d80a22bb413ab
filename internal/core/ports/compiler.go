package ports

import (
	"context"
	"io"

	"github.com/melih/oldcc/internal/core/domain"
)

// CompileService compiles a single source file against the toolchain image.
type CompileService interface {
	// Compile returns the compiled binary. Image build log lines go to buildLog
	// when it is non-nil. A non-zero compiler exit yields *domain.CompileError.
	Compile(ctx context.Context, src domain.Source, buildLog io.Writer) (*domain.Artifact, error)
	// Clean removes containers left behind by interrupted runs.
	Clean(ctx context.Context) ([]domain.Container, error)
}
