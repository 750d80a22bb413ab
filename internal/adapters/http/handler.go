package http

import (
	"errors"
	"io"
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/oldcc/internal/core/domain"
	"github.com/melih/oldcc/internal/core/ports"
	"github.com/melih/oldcc/internal/logging"
)

type CompileHandler struct {
	compiler       ports.CompileService
	builder        ports.ImageBuilder
	engine         ports.ContainerEngine
	image          string
	maxSourceBytes int64
}

func NewCompileHandler(compiler ports.CompileService, builder ports.ImageBuilder, engine ports.ContainerEngine, image string, maxSourceBytes int64) *CompileHandler {
	return &CompileHandler{
		compiler:       compiler,
		builder:        builder,
		engine:         engine,
		image:          image,
		maxSourceBytes: maxSourceBytes,
	}
}

// Routes mounts the handler under router.
func (h *CompileHandler) Routes(router fiber.Router) {
	v1 := router.Group("/api/v1")
	v1.Post("/compile", h.Compile)
	v1.Get("/image", h.GetImage)
	v1.Get("/containers", h.ListContainers)
}

// Compile takes a multipart "source" file and answers with the binary.
func (h *CompileHandler) Compile(c *fiber.Ctx) error {
	fh, err := c.FormFile("source")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "source file is required",
		})
	}
	if h.maxSourceBytes > 0 && fh.Size > h.maxSourceBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "source file is too large",
		})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	src, err := domain.NewSource(filepath.Base(fh.Filename), content, 0o644)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Note: blocks for the whole build+compile; the first request on a fresh
	// host also pays for the image build.
	artifact, err := h.compiler.Compile(c.UserContext(), src, nil)
	if err != nil {
		var compileErr *domain.CompileError
		switch {
		case errors.As(err, &compileErr):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":     compileErr.Error(),
				"output":    string(compileErr.Output),
				"exit_code": compileErr.ExitCode,
			})
		case errors.Is(err, domain.ErrInvalidSource):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		default:
			logging.From(c.UserContext()).Error("compile failed", "source", src.Name, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	c.Attachment(artifact.Name)
	return c.Status(fiber.StatusOK).Send(artifact.Content)
}

func (h *CompileHandler) GetImage(c *fiber.Ctx) error {
	present, err := h.builder.HasImage(c.UserContext(), h.image)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"image":   h.image,
		"present": present,
	})
}

// ListContainers shows oldcc containers still known to the engine; outside of
// in-flight compiles the list should be empty.
func (h *CompileHandler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.engine.ListContainers(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(containers)
}
