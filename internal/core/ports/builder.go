package ports

import (
	"context"
	"io"
)

// ImageBuilder makes sure the toolchain image is available to the engine.
type ImageBuilder interface {
	// EnsureImage builds the image under tag unless an image already carries it.
	// Build log lines are written to logw when it is non-nil.
	// It reports whether a build happened.
	EnsureImage(ctx context.Context, tag string, logw io.Writer) (bool, error)
	// HasImage reports whether an image carrying tag exists.
	HasImage(ctx context.Context, tag string) (bool, error)
}
