package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSourceNotFound  = errors.New("source file not found")
	ErrInvalidSource   = errors.New("invalid source")
	ErrImageBuild      = errors.New("toolchain image build failed")
	ErrTransfer        = errors.New("archive transfer failed")
	ErrArtifactMissing = errors.New("compiled artifact not found in container")
)

// CompileError reports a compiler invocation that exited non-zero.
type CompileError struct {
	ExitCode int
	Output   []byte
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiler exited with status %d", e.ExitCode)
}
