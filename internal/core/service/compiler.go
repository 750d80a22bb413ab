package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/melih/oldcc/internal/archive"
	"github.com/melih/oldcc/internal/core/domain"
	"github.com/melih/oldcc/internal/core/ports"
	"github.com/melih/oldcc/internal/logging"
)

const (
	DefaultWorkDir    = "/root"
	DefaultOutputName = "a.out"

	// cleanupGrace is added on top of the stop timeout for remove calls.
	cleanupGrace = 10 * time.Second
)

// Options configures a Compiler. Zero durations disable the matching timeout.
type Options struct {
	Image        string
	Compiler     string
	CompilerArgs []string
	WorkDir      string
	OutputName   string

	ExecTimeout time.Duration
	CopyTimeout time.Duration
	StopTimeout time.Duration
}

// Compiler runs one compile per call in a fresh toolchain container.
type Compiler struct {
	engine  ports.ContainerEngine
	builder ports.ImageBuilder
	opts    Options
}

var _ ports.CompileService = (*Compiler)(nil)

func NewCompiler(engine ports.ContainerEngine, builder ports.ImageBuilder, opts Options) *Compiler {
	if opts.WorkDir == "" {
		opts.WorkDir = DefaultWorkDir
	}
	if opts.OutputName == "" {
		opts.OutputName = DefaultOutputName
	}
	if opts.Compiler == "" {
		opts.Compiler = "gcc"
	}
	return &Compiler{engine: engine, builder: builder, opts: opts}
}

// Compile packs src, provisions a container, compiles inside it and returns
// the binary. The container is removed on every return path.
func (c *Compiler) Compile(ctx context.Context, src domain.Source, buildLog io.Writer) (*domain.Artifact, error) {
	logger := logging.From(ctx).With("source", src.Name)

	srcPath := path.Join(c.opts.WorkDir, src.Name)
	outPath := path.Join(c.opts.WorkDir, c.opts.OutputName)

	// A bad source must fail before any engine call.
	if err := src.Validate(); err != nil {
		return nil, err
	}
	inbound, err := archive.Pack(srcPath, src.Content, src.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSource, err)
	}

	// 1. Image resolution
	if _, err := c.builder.EnsureImage(ctx, c.opts.Image, buildLog); err != nil {
		return nil, err
	}

	// 2. Container provisioning
	id, release, err := c.provision(ctx, src)
	if err != nil {
		return nil, err
	}
	defer release()
	logger = logger.With("container_id", shortID(id))

	// 3. Inbound transfer
	logger.Info("copying source to the container", "path", srcPath)
	if err := c.withTimeout(ctx, c.opts.CopyTimeout, func(ctx context.Context) error {
		return c.engine.CopyTo(ctx, id, "/", inbound)
	}); err != nil {
		return nil, err
	}

	// 4. Compilation
	cmd := c.command(srcPath, outPath)
	logger.Info("compiling inside the container", "cmd", cmd)
	var res *domain.ExecResult
	if err := c.withTimeout(ctx, c.opts.ExecTimeout, func(ctx context.Context) error {
		var err error
		res, err = c.engine.Exec(ctx, id, cmd)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to run compiler: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, &domain.CompileError{ExitCode: res.ExitCode, Output: res.Output}
	}

	// 5. Outbound transfer
	logger.Info("copying the compiled output back to the host", "path", outPath)
	var outbound bytes.Buffer
	if err := c.withTimeout(ctx, c.opts.CopyTimeout, func(ctx context.Context) error {
		rc, err := c.engine.CopyFrom(ctx, id, outPath)
		if err != nil {
			return err
		}
		defer rc.Close()
		if _, err := io.Copy(&outbound, rc); err != nil {
			return fmt.Errorf("%w: read %s: %w", domain.ErrTransfer, outPath, err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// 6. Teardown
	release()

	// 7. Extraction
	entry, err := archive.Extract(&outbound, c.opts.OutputName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrArtifactMissing, err)
	}

	return &domain.Artifact{
		Name:           c.opts.OutputName,
		Content:        entry.Content,
		Mode:           entry.Mode,
		CompilerOutput: res.Output,
	}, nil
}

// provision creates and starts a container. The returned release func stops
// and removes it; it is safe to call more than once.
func (c *Compiler) provision(ctx context.Context, src domain.Source) (string, func(), error) {
	id, err := c.engine.CreateContainer(ctx, domain.ContainerSpec{
		Image:  c.opts.Image,
		Name:   "oldcc-" + uuid.NewString(),
		Cmd:    []string{"/bin/bash"},
		Tty:    true,
		Labels: map[string]string{"oldcc.source": src.Name},
	})
	if err != nil {
		return "", nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() { c.teardown(ctx, id) })
	}

	if err := c.engine.StartContainer(ctx, id); err != nil {
		release()
		return "", nil, err
	}

	logging.From(ctx).Debug("container started", "container_id", shortID(id), "image", c.opts.Image)
	return id, release, nil
}

// teardown runs on a context detached from the caller so a cancelled run
// still removes its container.
func (c *Compiler) teardown(ctx context.Context, id string) {
	logger := logging.From(ctx).With("container_id", shortID(id))

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.StopTimeout+cleanupGrace)
	defer cancel()

	if err := c.engine.StopContainer(cleanupCtx, id); err != nil {
		logger.Warn("failed to stop container", "error", err)
	}
	if err := c.engine.RemoveContainer(cleanupCtx, id); err != nil {
		logger.Warn("failed to remove container", "error", err)
		return
	}
	logger.Debug("container removed")
}

// Clean stops and removes every oldcc container still known to the engine.
func (c *Compiler) Clean(ctx context.Context) ([]domain.Container, error) {
	containers, err := c.engine.ListContainers(ctx)
	if err != nil {
		return nil, err
	}

	removed := make([]domain.Container, 0, len(containers))
	for _, ctr := range containers {
		if ctr.State == "running" {
			if err := c.engine.StopContainer(ctx, ctr.ID); err != nil {
				logging.From(ctx).Warn("failed to stop container", "container_id", ctr.ID, "error", err)
			}
		}
		if err := c.engine.RemoveContainer(ctx, ctr.ID); err != nil {
			return removed, err
		}
		removed = append(removed, ctr)
	}
	return removed, nil
}

func (c *Compiler) command(srcPath, outPath string) []string {
	cmd := []string{c.opts.Compiler, srcPath}
	cmd = append(cmd, c.opts.CompilerArgs...)
	return append(cmd, "-o", outPath)
}

func (c *Compiler) withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
