package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/melih/oldcc/internal/core/domain"
)

const (
	DefaultImage    = "gcc_old_libc:latest"
	DefaultCompiler = "gcc"
)

// Config holds settings shared by the CLI and the HTTP service.
// Every field has a default matching the plain `oldcc main.c` behaviour.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Image string `env:"OLDCC_IMAGE" envDefault:"gcc_old_libc:latest"`
	// BuildContext is a local directory or git URL holding a Dockerfile.
	// Empty selects the embedded toolchain Dockerfile.
	BuildContext string   `env:"OLDCC_BUILD_CONTEXT"`
	Compiler     string   `env:"OLDCC_COMPILER" envDefault:"gcc"`
	CompilerArgs []string `env:"OLDCC_COMPILER_ARGS" envSeparator:" "`

	BuildTimeout time.Duration `env:"OLDCC_BUILD_TIMEOUT" envDefault:"30m"`
	ExecTimeout  time.Duration `env:"OLDCC_EXEC_TIMEOUT" envDefault:"5m"`
	CopyTimeout  time.Duration `env:"OLDCC_COPY_TIMEOUT" envDefault:"1m"`
	StopTimeout  time.Duration `env:"OLDCC_STOP_TIMEOUT" envDefault:"10s"`

	HTTPAddr       string `env:"OLDCC_HTTP_ADDR" envDefault:":3000"`
	MaxSourceBytes int    `env:"OLDCC_MAX_SOURCE_BYTES" envDefault:"4194304"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would make every run fail and normalizes
// the image tag to the form the engine lists it under.
func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("image tag must not be empty")
	}
	image, err := domain.NormalizeImageTag(c.Image)
	if err != nil {
		return err
	}
	c.Image = image
	if c.Compiler == "" {
		return fmt.Errorf("compiler must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"build timeout": c.BuildTimeout,
		"exec timeout":  c.ExecTimeout,
		"copy timeout":  c.CopyTimeout,
		"stop timeout":  c.StopTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}
