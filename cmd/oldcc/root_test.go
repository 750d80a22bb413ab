package main

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/oldcc/internal/archive"
	"github.com/melih/oldcc/internal/config"
	"github.com/melih/oldcc/internal/core/domain"
)

// stubEngine runs "compiles" in memory. The toolchain image is always present.
type stubEngine struct {
	files    map[string][]byte
	exitCode int
	output   string
	removed  int
	closed   bool
	leftover []domain.Container
	dialErr  error
}

func newStubEngine() *stubEngine {
	return &stubEngine{files: map[string][]byte{}}
}

func (e *stubEngine) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	return "f00dcafe", nil
}

func (e *stubEngine) StartContainer(ctx context.Context, id string) error { return nil }
func (e *stubEngine) StopContainer(ctx context.Context, id string) error  { return nil }

func (e *stubEngine) RemoveContainer(ctx context.Context, id string) error {
	e.removed++
	return nil
}

func (e *stubEngine) ListContainers(ctx context.Context) ([]domain.Container, error) {
	return e.leftover, nil
}

func (e *stubEngine) CopyTo(ctx context.Context, id string, dstDir string, r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		e.files[hdr.Name] = b
	}
}

func (e *stubEngine) CopyFrom(ctx context.Context, id string, srcPath string) (io.ReadCloser, error) {
	b, ok := e.files[srcPath]
	if !ok {
		return nil, domain.ErrArtifactMissing
	}
	buf, err := archive.Pack(path.Base(srcPath), b, 0o755)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(buf), nil
}

func (e *stubEngine) Exec(ctx context.Context, id string, cmd []string) (*domain.ExecResult, error) {
	if e.exitCode == 0 {
		e.files[cmd[len(cmd)-1]] = append([]byte("ELF:"), e.files[cmd[1]]...)
	}
	return &domain.ExecResult{ExitCode: e.exitCode, Output: []byte(e.output)}, nil
}

func (e *stubEngine) ImageTags(ctx context.Context) ([]string, error) {
	return []string{config.DefaultImage}, nil
}

func (e *stubEngine) BuildImage(ctx context.Context, buildContext io.Reader, tag string) (io.ReadCloser, error) {
	return nil, errors.New("unexpected build")
}

func (e *stubEngine) Close() error {
	e.closed = true
	return nil
}

func run(t *testing.T, eng *stubEngine, args ...string) (string, *cli, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")

	c := newCLI()
	engineCalls := 0
	c.newEngine = func(ctx context.Context, cfg *config.Config) (engine, error) {
		engineCalls++
		if eng != nil && eng.dialErr != nil {
			return nil, eng.dialErr
		}
		return eng, nil
	}

	var out bytes.Buffer
	root := newRootCmd(c)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	if eng == nil {
		assert.Zero(t, engineCalls)
	}
	return out.String(), c, err
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestCompileCommand(t *testing.T) {
	t.Run("writes the binary and reports success", func(t *testing.T) {
		eng := newStubEngine()
		src := writeSource(t, "hello.c", "int main(void){return 0;}\n")
		dst := filepath.Join(t.TempDir(), "a.out")

		out, _, err := run(t, eng, src, "-o", dst)
		require.NoError(t, err)

		assert.Contains(t, out, "Compilation complete")
		assert.Contains(t, out, "File: "+dst)

		b, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "ELF:int main(void){return 0;}\n", string(b))

		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

		assert.Equal(t, 1, eng.removed)
		assert.True(t, eng.closed)
	})

	t.Run("missing source never reaches the engine", func(t *testing.T) {
		out, _, err := run(t, nil, filepath.Join(t.TempDir(), "nope.c"))
		assert.ErrorIs(t, err, domain.ErrSourceNotFound)

		var exitErr *exitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 1, exitErr.code)
		assert.Equal(t, 1, strings.Count(out, "✗"))
	})

	t.Run("engine failure is reported once", func(t *testing.T) {
		eng := newStubEngine()
		eng.dialErr = errors.New("docker daemon is not available")
		src := writeSource(t, "hello.c", "int main(void){return 0;}\n")

		out, _, err := run(t, eng, src, "-o", filepath.Join(t.TempDir(), "a.out"))

		var exitErr *exitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 1, exitErr.code)
		assert.Contains(t, out, "✗ docker daemon is not available")
		assert.Equal(t, 1, strings.Count(out, "not available"))
	})

	t.Run("compiler failure mirrors the exit code", func(t *testing.T) {
		eng := newStubEngine()
		eng.exitCode = 1
		eng.output = "hello.c:1:1: error: unknown type name 'itn'\n"
		src := writeSource(t, "hello.c", "itn main;\n")
		dst := filepath.Join(t.TempDir(), "a.out")

		out, _, err := run(t, eng, src, "-o", dst)

		var exitErr *exitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 1, exitErr.code)
		assert.Contains(t, out, "unknown type name 'itn'")
		assert.Contains(t, out, "Compilation failed")
		assert.NoFileExists(t, dst)
		assert.Equal(t, 1, eng.removed)
	})

	t.Run("compiler args flag reaches the command line", func(t *testing.T) {
		eng := newStubEngine()
		src := writeSource(t, "hello.c", "int main(void){return 0;}\n")
		dst := filepath.Join(t.TempDir(), "a.out")

		_, c, err := run(t, eng, src, "-o", dst, "--compiler-arg", "-static", "--compiler-arg", "-O2")
		require.NoError(t, err)
		assert.Equal(t, []string{"-static", "-O2"}, c.cfg.CompilerArgs)
	})

	t.Run("requires exactly one file", func(t *testing.T) {
		_, _, err := run(t, nil)
		assert.Error(t, err)
	})
}

func TestWriteArtifact(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "a.out")
	require.NoError(t, os.WriteFile(dst, []byte("stale"), 0o600))

	err := writeArtifact(dst, &domain.Artifact{Content: []byte("fresh"), Mode: 0o750})
	require.NoError(t, err)

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(b))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
}

func TestCleanCommand(t *testing.T) {
	eng := newStubEngine()
	eng.leftover = []domain.Container{{ID: "0123456789ab", Name: "oldcc-1", State: "exited"}}

	out, _, err := run(t, eng, "clean")
	require.NoError(t, err)
	assert.Contains(t, out, "removed oldcc-1")
	assert.Equal(t, 1, eng.removed)
}

func TestDockerfileCommand(t *testing.T) {
	out, _, err := run(t, nil, "dockerfile")
	require.NoError(t, err)
	assert.Contains(t, out, "FROM ")
}
