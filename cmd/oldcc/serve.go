package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/melih/oldcc/internal/adapters/http"
	"github.com/melih/oldcc/internal/logging"
)

const shutdownTimeout = 15 * time.Second

// multipartOverhead is the body allowance on top of the source itself.
const multipartOverhead = 64 << 10

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve compiles over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	logger := logging.From(ctx)

	// 1. Initialize adapters
	eng, err := c.newEngine(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	b := c.imageBuilder(eng)
	handler := http.NewCompileHandler(c.compiler(eng, b), b, eng, c.cfg.Image, int64(c.cfg.MaxSourceBytes))

	// 2. Setup Fiber
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             c.cfg.MaxSourceBytes + multipartOverhead,
	})
	app.Use(func(fc *fiber.Ctx) error {
		fc.SetUserContext(logging.With(ctx, logger.With("path", fc.Path())))
		return fc.Next()
	})
	handler.Routes(app)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Warn("shutdown failed", "error", err)
		}
	}()

	// 3. Start Server
	logger.Info("listening", "addr", c.cfg.HTTPAddr, "image", c.cfg.Image)
	return app.Listen(c.cfg.HTTPAddr)
}
