package builder

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	goarchive "github.com/moby/go-archive"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/melih/oldcc/internal/archive"
	"github.com/melih/oldcc/internal/core/domain"
	"github.com/melih/oldcc/internal/logging"
)

//go:embed toolchain.Dockerfile
var toolchainDockerfile []byte

// ImageEngine is the image side of the container engine.
type ImageEngine interface {
	ImageTags(ctx context.Context) ([]string, error)
	BuildImage(ctx context.Context, buildContext io.Reader, tag string) (io.ReadCloser, error)
}

// Adapter implements ports.ImageBuilder.
type Adapter struct {
	engine       ImageEngine
	contextSrc   string
	buildTimeout time.Duration
	builds       singleflight.Group
}

// NewBuilderAdapter creates a builder. contextSrc is a local directory, a git
// URL (optionally suffixed with #branch), or empty for the embedded Dockerfile.
func NewBuilderAdapter(engine ImageEngine, contextSrc string, buildTimeout time.Duration) *Adapter {
	return &Adapter{engine: engine, contextSrc: contextSrc, buildTimeout: buildTimeout}
}

// HasImage reports whether any image carries tag. An untagged reference
// matches its ":latest" tag.
func (a *Adapter) HasImage(ctx context.Context, tag string) (bool, error) {
	tag, err := domain.NormalizeImageTag(tag)
	if err != nil {
		return false, err
	}
	return a.hasImage(ctx, tag)
}

func (a *Adapter) hasImage(ctx context.Context, tag string) (bool, error) {
	tags, err := a.engine.ImageTags(ctx)
	if err != nil {
		return false, err
	}
	return lo.Contains(tags, tag), nil
}

// EnsureImage builds tag unless it already exists. Concurrent callers for the
// same tag share one build, which keeps running if the caller that started it
// goes away. Build log lines only reach the logw of that first caller.
func (a *Adapter) EnsureImage(ctx context.Context, tag string, logw io.Writer) (bool, error) {
	tag, err := domain.NormalizeImageTag(tag)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrImageBuild, err)
	}

	present, err := a.hasImage(ctx, tag)
	if err != nil {
		return false, err
	}
	if present {
		logging.From(ctx).Info("image already exists, skipping the build", "image", tag)
		return false, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := a.builds.DoChan(tag, func() (any, error) {
		// a build for tag may have finished since the check above
		if present, err := a.hasImage(buildCtx, tag); err != nil || present {
			return false, err
		}
		return true, a.build(buildCtx, tag, logw)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (a *Adapter) build(ctx context.Context, tag string, logw io.Writer) error {
	logger := logging.From(ctx)
	logger.Info("image does not exist, building", "image", tag)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, a.buildTimeout)
	defer cancel()

	buildCtx, cleanup, err := a.buildContext(ctx, logw)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrImageBuild, err)
	}
	defer cleanup()

	body, err := a.engine.BuildImage(ctx, buildCtx, tag)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrImageBuild, err)
	}
	defer body.Close()

	if err := readBuildLog(body, logw); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrImageBuild, err)
	}

	logger.Info("image has been built", "image", tag, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// buildContext returns the tarred build context and a cleanup func.
func (a *Adapter) buildContext(ctx context.Context, logw io.Writer) (io.Reader, func(), error) {
	noop := func() {}

	switch {
	case a.contextSrc == "":
		tar, err := archive.Pack("Dockerfile", toolchainDockerfile, 0o644)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create build context: %w", err)
		}
		return tar, noop, nil

	case isGitURL(a.contextSrc):
		// 1. Create temporary directory
		tmpDir, err := os.MkdirTemp("", "oldcc-build-*")
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create temp dir: %w", err)
		}
		cleanup := func() { os.RemoveAll(tmpDir) }

		// 2. Clone Repository
		if err := cloneRepository(ctx, a.contextSrc, tmpDir, logw); err != nil {
			cleanup()
			return nil, noop, err
		}

		// 3. Create Build Context (Tar)
		tar, err := tarDir(tmpDir)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		return tar, func() { tar.Close(); cleanup() }, nil

	default:
		tar, err := tarDir(a.contextSrc)
		if err != nil {
			return nil, noop, err
		}
		return tar, func() { tar.Close() }, nil
	}
}

func cloneRepository(ctx context.Context, src, dir string, logw io.Writer) error {
	repoURL, branch, _ := strings.Cut(src, "#")

	opts := &git.CloneOptions{
		URL:   repoURL,
		Depth: 1, // Shallow clone for speed
	}
	if logw != nil {
		opts.Progress = logw
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}

	logging.From(ctx).Info("cloning build context", "url", repoURL, "branch", branch)
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("failed to clone repo: %w", err)
	}
	return nil
}

func tarDir(dir string) (io.ReadCloser, error) {
	if _, err := os.Stat(filepath.Join(dir, "Dockerfile")); err != nil {
		return nil, fmt.Errorf("dockerfile not found in build context %s: %w", dir, err)
	}

	tar, err := goarchive.TarWithOptions(dir, &goarchive.TarOptions{
		ExcludePatterns: []string{".git"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}
	return tar, nil
}

func isGitURL(s string) bool {
	for _, prefix := range []string{"https://", "http://", "git://", "ssh://", "git@"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	repoURL, _, _ := strings.Cut(s, "#")
	return strings.HasSuffix(repoURL, ".git") && !isDir(repoURL)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// readBuildLog drains the build message stream. Stream text goes to logw when
// set; an error message fails the build.
func readBuildLog(r io.Reader, logw io.Writer) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read build output: %w", err)
		}

		if msg.Error != nil {
			return errors.New(msg.Error.Message)
		}
		if msg.ErrorMessage != "" {
			return errors.New(msg.ErrorMessage)
		}

		if logw != nil && msg.Stream != "" {
			if line := strings.TrimSpace(msg.Stream); line != "" {
				fmt.Fprintln(logw, line)
			}
		}
	}
}

// DefaultDockerfile returns the embedded toolchain Dockerfile.
func DefaultDockerfile() []byte {
	return bytes.Clone(toolchainDockerfile)
}
