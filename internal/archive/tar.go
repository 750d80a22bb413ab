// Package archive moves single files across the container boundary as tar streams.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"
)

var ErrEntryNotFound = errors.New("entry not found in archive")

// Entry is a regular file read out of a tar stream.
type Entry struct {
	Name    string
	Content []byte
	Mode    fs.FileMode
}

// Pack builds an in-memory tar holding one regular file at name.
func Pack(name string, content []byte, mode fs.FileMode) (*bytes.Buffer, error) {
	clean := path.Clean(name)
	if clean == "." || clean == "/" {
		return nil, fmt.Errorf("invalid entry name %q", name)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     clean,
		Mode:     int64(mode.Perm()),
		Size:     int64(len(content)),
		ModTime:  time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("failed to write tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write tar entry: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar writer: %w", err)
	}

	return &buf, nil
}

// Extract scans a tar stream for the regular file whose base name is name.
// Directory entries are skipped.
func Extract(r io.Reader, name string) (*Entry, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar stream: %w", err)
		}

		if hdr.Typeflag != tar.TypeReg || path.Base(hdr.Name) != name {
			continue
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, fmt.Errorf("failed to read %s from archive: %w", hdr.Name, err)
		}

		return &Entry{
			Name:    name,
			Content: buf.Bytes(),
			Mode:    hdr.FileInfo().Mode().Perm(),
		}, nil
	}
}
