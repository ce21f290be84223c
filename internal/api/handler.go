package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rdanvers/pagecheck/internal/browser"
	"github.com/rdanvers/pagecheck/internal/queue"
	"github.com/rdanvers/pagecheck/internal/verify"
)

// PageVerifier runs a verification and reports the classified outcome.
type PageVerifier interface {
	Verify(ctx context.Context, req verify.Request) verify.Result
}

// Handler handles API requests
type Handler struct {
	browser  browser.Client
	verifier PageVerifier
}

// NewHandler creates a new handler
func NewHandler(client browser.Client, verifier PageVerifier) *Handler {
	return &Handler{
		browser:  client,
		verifier: verifier,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorHandler is the custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(Response{
		Success: false,
		Error:   err.Error(),
	})
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// BrowserStatus returns browser status
func (h *Handler) BrowserStatus(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"running":  h.browser.IsRunning(),
			"endpoint": h.browser.GetEndpoint(),
		},
	})
}

// VerifyRequest is the synchronous verification request body. It shares the
// wire shape of a queued job request.
type VerifyRequest struct {
	queue.JobRequest
}

// Verify runs a verification synchronously and returns the result. A failed
// verification is still an HTTP 200; the outcome lives in the result payload.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if req.TargetURL == "" {
		return fiber.NewError(fiber.StatusBadRequest, "target_url is required")
	}
	if req.ReadySelector == "" {
		return fiber.NewError(fiber.StatusBadRequest, "ready_selector is required")
	}
	if req.OutputPath == "" {
		return fiber.NewError(fiber.StatusBadRequest, "output_path is required")
	}

	result := h.verifier.Verify(context.Background(), req.VerifyRequest())

	return c.JSON(Response{
		Success: true,
		Data:    result,
	})
}
