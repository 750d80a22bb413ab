package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultImage, cfg.Image)
	assert.Equal(t, DefaultCompiler, cfg.Compiler)
	assert.Empty(t, cfg.BuildContext)
	assert.Empty(t, cfg.CompilerArgs)
	assert.Equal(t, 30*time.Minute, cfg.BuildTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ExecTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OLDCC_IMAGE", "toolchain:glibc-2.28")
	t.Setenv("OLDCC_COMPILER_ARGS", "-O2 -static-libgcc")
	t.Setenv("OLDCC_EXEC_TIMEOUT", "90s")
	t.Setenv("OLDCC_BUILD_CONTEXT", "https://example.com/toolchain.git")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "toolchain:glibc-2.28", cfg.Image)
	assert.Equal(t, []string{"-O2", "-static-libgcc"}, cfg.CompilerArgs)
	assert.Equal(t, 90*time.Second, cfg.ExecTimeout)
	assert.Equal(t, "https://example.com/toolchain.git", cfg.BuildContext)
}

func TestLoadNormalizesImage(t *testing.T) {
	t.Setenv("OLDCC_IMAGE", "gcc_old_libc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gcc_old_libc:latest", cfg.Image)
}

func TestLoadRejectsInvalidImage(t *testing.T) {
	t.Setenv("OLDCC_IMAGE", "GCC OLD")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("OLDCC_COPY_TIMEOUT", "0s")

	_, err := Load()
	assert.ErrorContains(t, err, "copy timeout")
}
