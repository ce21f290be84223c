package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/rdanvers/pagecheck/internal/queue"
	"github.com/rdanvers/pagecheck/internal/security"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	queueManager     *queue.Manager
	idempotencyStore *security.IdempotencyStore
	baseURL          string
}

// NewJobHandler creates a new job handler
func NewJobHandler(qm *queue.Manager) *JobHandler {
	return &JobHandler{
		queueManager:     qm,
		idempotencyStore: security.NewIdempotencyStore(24 * time.Hour),
	}
}

// NewJobHandlerWithSecurity creates a new job handler with a shared
// idempotency store and a base path for the URLs in job responses.
func NewJobHandlerWithSecurity(qm *queue.Manager, idempotencyStore *security.IdempotencyStore, baseURL string) *JobHandler {
	return &JobHandler{
		queueManager:     qm,
		idempotencyStore: idempotencyStore,
		baseURL:          baseURL,
	}
}

// CreateJob creates a new async verification job
// POST /pagecheck/jobs
func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	var req queue.JobRequest
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

	// Check idempotency key from header or body
	idempotencyKey := c.Get("X-Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = req.IdempotencyKey
	}

	// If idempotency key provided, check for cached response
	if idempotencyKey != "" && h.idempotencyStore != nil {
		if cachedResponse, exists := h.idempotencyStore.Check(idempotencyKey); exists {
			c.Set("X-Idempotency-Hit", "true")
			return c.Status(fiber.StatusAccepted).JSON(Response{
				Success: true,
				Data:    cachedResponse,
			})
		}
	}

	req.IdempotencyKey = idempotencyKey

	// Clamp priority to 1-10, default 5
	if req.Priority <= 0 || req.Priority > 10 {
		req.Priority = 5
	}

	// Clamp timeout to 5 minutes
	if req.Timeout > 300 {
		req.Timeout = 300
	}

	job := queue.NewJob(req)

	enqueuedJob, wasDuplicate, err := h.queueManager.EnqueueWithIdempotency(job)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("Failed to enqueue job: %v", err))
	}

	response := queue.JobCreatedResponse{
		JobID:     enqueuedJob.ID,
		Status:    enqueuedJob.Status,
		StatusURL: fmt.Sprintf("%s/pagecheck/jobs/%s", h.baseURL, enqueuedJob.ID),
		ResultURL: fmt.Sprintf("%s/pagecheck/jobs/%s/result", h.baseURL, enqueuedJob.ID),
	}
	response.Events.SSEURL = fmt.Sprintf("%s/pagecheck/jobs/%s/events", h.baseURL, enqueuedJob.ID)
	response.Events.WSURL = fmt.Sprintf("%s/pagecheck/ws?job_id=%s", h.baseURL, enqueuedJob.ID)

	// Cache response for idempotency
	if idempotencyKey != "" && h.idempotencyStore != nil && !wasDuplicate {
		h.idempotencyStore.Store(idempotencyKey, enqueuedJob.ID, response)
	}

	if wasDuplicate {
		c.Set("X-Idempotency-Hit", "true")
	}

	return c.Status(fiber.StatusAccepted).JSON(Response{
		Success: true,
		Data:    response,
	})
}

// GetJobStatus returns the status of a job
// GET /pagecheck/jobs/:job_id
func (h *JobHandler) GetJobStatus(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	if jobID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Job ID is required")
	}

	job, err := h.queueManager.GetJob(jobID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Job not found")
	}

	response := map[string]interface{}{
		"job_id":     job.ID,
		"status":     job.Status,
		"progress":   job.Progress,
		"message":    job.Message,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
		"priority":   job.Priority,
	}

	if job.Status == queue.JobStatusFailed {
		response["error"] = job.Error
		response["error_kind"] = job.ErrorKind
	}

	// Add TTL info
	if job.ExpiresAt > 0 {
		response["expires_at"] = time.Unix(job.ExpiresAt, 0).Format(time.RFC3339)
	}

	return c.JSON(Response{
		Success: true,
		Data:    response,
	})
}

// GetJobResult returns the result of a completed job
// GET /pagecheck/jobs/:job_id/result
func (h *JobHandler) GetJobResult(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	if jobID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Job ID is required")
	}

	job, err := h.queueManager.GetJob(jobID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Job not found")
	}

	if job.Status != queue.JobStatusSucceeded && job.Status != queue.JobStatusFailed {
		return fiber.NewError(fiber.StatusConflict, "Job not completed yet")
	}

	return c.JSON(Response{
		Success: true,
		Data: queue.JobResultResponse{
			JobID:     job.ID,
			Status:    job.Status,
			Result:    job.Result,
			Error:     job.Error,
			ErrorKind: job.ErrorKind,
		},
	})
}

// CancelJob cancels a queued or running job
// POST /pagecheck/jobs/:job_id/cancel
func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	if jobID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Job ID is required")
	}

	job, err := h.queueManager.CancelJob(jobID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		},
	})
}

// StreamEvents streams job events via SSE
// GET /pagecheck/jobs/:job_id/events
func (h *JobHandler) StreamEvents(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	if jobID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Job ID is required")
	}

	// Check if job exists
	job, err := h.queueManager.GetJob(jobID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Job not found")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// Send initial status
		eventData, _ := json.Marshal(queue.Event{
			JobID:    job.ID,
			Status:   job.Status,
			Progress: job.Progress,
			Message:  job.Message,
		})
		fmt.Fprintf(w, "data: %s\n\n", eventData)
		w.Flush()

		// If job is already completed, close the stream
		if job.Status.Terminal() {
			return
		}

		// Subscribe to events
		events := h.queueManager.Subscribe(jobID)
		defer h.queueManager.Unsubscribe(jobID, events)

		for event := range events {
			eventData, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", eventData)
			w.Flush()

			// Close stream when job completes
			if event.Status.Terminal() {
				return
			}
		}
	})

	return nil
}

// HandleWebSocket handles WebSocket connections for job events
func (h *JobHandler) HandleWebSocket(c *websocket.Conn) {
	jobID := c.Query("job_id")
	if jobID == "" {
		_ = c.WriteJSON(map[string]interface{}{
			"error": "job_id is required",
		})
		c.Close()
		return
	}

	// Check if job exists
	job, err := h.queueManager.GetJob(jobID)
	if err != nil {
		_ = c.WriteJSON(map[string]interface{}{
			"error": "job not found",
		})
		c.Close()
		return
	}

	// Send initial status
	_ = c.WriteJSON(queue.Event{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  job.Message,
	})

	// If job is already completed, close the connection
	if job.Status.Terminal() {
		c.Close()
		return
	}

	// Subscribe to events
	events := h.queueManager.Subscribe(jobID)
	defer h.queueManager.Unsubscribe(jobID, events)

	// Send events to client
	for event := range events {
		if err := c.WriteJSON(event); err != nil {
			return
		}

		// Close connection when job completes
		if event.Status.Terminal() {
			time.Sleep(100 * time.Millisecond)
			return
		}
	}
}
