package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/melih/oldcc/internal/adapters/builder"
	"github.com/melih/oldcc/internal/adapters/docker"
	"github.com/melih/oldcc/internal/config"
	"github.com/melih/oldcc/internal/core/domain"
	"github.com/melih/oldcc/internal/core/ports"
	"github.com/melih/oldcc/internal/core/service"
	"github.com/melih/oldcc/internal/logging"
)

// engine is everything the commands need from the container engine.
type engine interface {
	ports.ContainerEngine
	builder.ImageEngine
	io.Closer
}

type cli struct {
	cfg    *config.Config
	logger *slog.Logger

	verbose      bool
	output       string
	compilerArgs []string

	newEngine func(ctx context.Context, cfg *config.Config) (engine, error)
}

func newCLI() *cli {
	return &cli{
		newEngine: func(ctx context.Context, cfg *config.Config) (engine, error) {
			return docker.NewAdapter(ctx, cfg.StopTimeout)
		},
	}
}

// exitError carries a process exit status for a failure that has already
// been reported to the user.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func newRootCmd(c *cli) *cobra.Command {
	var image, buildContext string

	root := &cobra.Command{
		Use:   "oldcc [flags] FILE",
		Short: "Compile a C file against the pre-2.34 glibc ABI",
		Long: `oldcc compiles a single C source file inside a throwaway container built
from an older glibc toolchain image and copies the binary back to the
current directory. The toolchain image is built on first use.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if image != "" {
				cfg.Image = image
			}
			if buildContext != "" {
				cfg.BuildContext = buildContext
			}
			if len(c.compilerArgs) > 0 {
				cfg.CompilerArgs = c.compilerArgs
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			c.cfg = cfg
			c.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
			slog.SetDefault(c.logger)
			cmd.SetContext(logging.With(cmd.Context(), c.logger))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.compile(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	root.Flags().BoolVarP(&c.verbose, "verbose", "v", false, "stream the image build log")
	root.Flags().StringVarP(&c.output, "output", "o", service.DefaultOutputName, "where to write the compiled binary")
	root.Flags().StringArrayVar(&c.compilerArgs, "compiler-arg", nil, "extra argument passed to the compiler (repeatable)")
	root.PersistentFlags().StringVar(&image, "image", "", "toolchain image tag (default "+config.DefaultImage+")")
	root.PersistentFlags().StringVar(&buildContext, "build-context", "", "directory or git URL with a toolchain Dockerfile")

	root.AddCommand(newServeCmd(c), newCleanCmd(c), newDockerfileCmd())
	return root
}

func (c *cli) imageBuilder(eng engine) *builder.Adapter {
	return builder.NewBuilderAdapter(eng, c.cfg.BuildContext, c.cfg.BuildTimeout)
}

func (c *cli) compiler(eng engine, b *builder.Adapter) *service.Compiler {
	return service.NewCompiler(eng, b, service.Options{
		Image:        c.cfg.Image,
		Compiler:     c.cfg.Compiler,
		CompilerArgs: c.cfg.CompilerArgs,
		ExecTimeout:  c.cfg.ExecTimeout,
		CopyTimeout:  c.cfg.CopyTimeout,
		StopTimeout:  c.cfg.StopTimeout,
	})
}

func (c *cli) compile(ctx context.Context, out io.Writer, path string) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fail := func(err error) error {
		fmt.Fprintf(out, "%s %v\n", red("✗"), err)
		return &exitError{code: 1, err: err}
	}

	// 1. Load the source before touching the engine
	src, err := domain.LoadSource(path)
	if err != nil {
		return fail(err)
	}

	// 2. Initialize adapters
	eng, err := c.newEngine(ctx, c.cfg)
	if err != nil {
		return fail(err)
	}
	defer eng.Close()

	var buildLog io.Writer
	if c.verbose {
		buildLog = out
	}

	// 3. Compile
	artifact, err := c.compiler(eng, c.imageBuilder(eng)).Compile(ctx, src, buildLog)
	if err != nil {
		var compileErr *domain.CompileError
		if errors.As(err, &compileErr) {
			out.Write(compileErr.Output)
			fmt.Fprintf(out, "%s Compilation failed (exit code %d)\n", red("✗"), compileErr.ExitCode)
			return &exitError{code: compileErr.ExitCode, err: compileErr}
		}
		return fail(err)
	}

	out.Write(artifact.CompilerOutput)

	// 4. Write the binary
	if err := writeArtifact(c.output, artifact); err != nil {
		return fail(err)
	}

	fmt.Fprintf(out, "%s Compilation complete\n", green("✓"))
	fmt.Fprintf(out, "└── File: %s\n", c.output)
	return nil
}

// writeArtifact writes the binary to path, replacing any existing file and
// applying the mode recorded in the archive.
func writeArtifact(path string, artifact *domain.Artifact) error {
	mode := artifact.Mode
	if mode == 0 {
		mode = 0o755
	}
	if err := os.WriteFile(path, artifact.Content, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// WriteFile keeps the mode of a file it overwrites
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	return nil
}
