package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Source is a C translation unit to compile.
type Source struct {
	// Name is the base file name, e.g. "main.c".
	Name    string
	Content []byte
	Mode    fs.FileMode
}

// Artifact is the compiled binary retrieved from the container.
type Artifact struct {
	Name    string
	Content []byte
	Mode    fs.FileMode
	// CompilerOutput is the combined compiler output, possibly empty.
	CompilerOutput []byte
}

// LoadSource reads a source file from the host filesystem.
func LoadSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Source{}, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return Source{}, fmt.Errorf("failed to stat source: %w", err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%w: %s is a directory", ErrInvalidSource, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to read source: %w", err)
	}

	return NewSource(filepath.Base(path), content, info.Mode().Perm())
}

// NewSource validates a source name and wraps its content.
func NewSource(name string, content []byte, mode fs.FileMode) (Source, error) {
	if mode == 0 {
		mode = 0o644
	}
	src := Source{Name: name, Content: content, Mode: mode}
	if err := src.Validate(); err != nil {
		return Source{}, err
	}
	return src, nil
}

// Validate checks that Name is a plain file name.
func (s Source) Validate() error {
	base := filepath.Base(s.Name)
	if s.Name == "" || base != s.Name || base == "." || base == ".." {
		return fmt.Errorf("%w: bad file name %q", ErrInvalidSource, s.Name)
	}
	return nil
}
