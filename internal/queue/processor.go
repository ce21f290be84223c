package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/rdanvers/pagecheck/internal/security"
	"github.com/rdanvers/pagecheck/internal/verify"
)

// ProcessError carries the verification error kind alongside the message so
// the job record can expose both.
type ProcessError struct {
	Kind string
	Err  error
}

func (e *ProcessError) Error() string {
	return e.Err.Error()
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// VerifyProcessor runs verification jobs against a shared browser.
type VerifyProcessor struct {
	verifier *verify.Verifier
}

// NewVerifyProcessor creates a new verification processor
func NewVerifyProcessor(v *verify.Verifier) *VerifyProcessor {
	return &VerifyProcessor{verifier: v}
}

// Process runs a single verification job
func (p *VerifyProcessor) Process(ctx context.Context, job *Job, progress func(int, string)) (interface{}, error) {
	req := job.Request.VerifyRequest()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("job timed out: %w", ctx.Err())
	default:
	}

	progress(10, fmt.Sprintf("Verifying %s", req.TargetURL))

	result := p.verifier.Verify(ctx, req)
	if !result.Succeeded {
		if job.Notify != nil && job.Notify.WebhookURL != "" {
			go sendWebhook(job, "failed")
		}
		return nil, &ProcessError{Kind: string(result.Kind), Err: errors.New(result.Error)}
	}

	progress(90, "Screenshot captured")

	if job.Notify != nil && job.Notify.WebhookURL != "" {
		go sendWebhook(job, "succeeded")
	}

	progress(100, "Verification complete")

	return result, nil
}

// sendWebhook posts a signed job-completion notification
func sendWebhook(job *Job, status string) {
	payload := map[string]interface{}{
		"job_id":      job.ID,
		"status":      status,
		"result_url":  fmt.Sprintf("/pagecheck/jobs/%s/result", job.ID),
		"finished_at": time.Now().Unix(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal webhook payload: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.Notify.WebhookURL, bytes.NewReader(data))
	if err != nil {
		log.Printf("Failed to create webhook request: %v", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pagecheck-Event", "job."+status)
	if job.Notify.WebhookSecret != "" {
		req.Header.Set("X-Pagecheck-Signature", security.GenerateWebhookSignature(data, job.Notify.WebhookSecret))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("Failed to send webhook: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("Webhook returned error status: %d", resp.StatusCode)
	}
}
