package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the JetStream stream
	StreamName = "PAGECHECK_JOBS"
	// SubjectName is the subject for verification job messages
	SubjectName = "pagecheck.verify"
	// ConsumerName is the name of the durable consumer
	ConsumerName = "pagecheck-worker"
)

// Manager manages the verification job queue. Jobs run strictly one at a
// time against a single browser, and a failed job is terminal.
type Manager struct {
	js        jetstream.JetStream
	store     *Store
	events    *EventHub
	stream    jetstream.Stream
	consumer  jetstream.Consumer
	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewManager creates a new queue manager
func NewManager(js jetstream.JetStream) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		js:     js,
		store:  NewStore(),
		events: NewEventHub(),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := m.setupStream(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to setup stream: %w", err)
	}

	return m, nil
}

func (m *Manager) setupStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := m.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Page verification job queue",
		Subjects:    []string{SubjectName},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	m.stream = stream

	// MaxDeliver is 1: verification jobs are never retried, a failure is
	// reported and requires explicit re-submission.
	consumer, err := m.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Name:          ConsumerName,
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    1,
		AckWait:       5 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	m.consumer = consumer

	return nil
}

// Start starts processing jobs from the queue, one at a time.
func (m *Manager) Start(processor JobProcessor) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = true
	m.mu.Unlock()

	log.Println("Starting verification job worker...")

	go func() {
		for {
			select {
			case <-m.ctx.Done():
				return
			default:
				msgs, err := m.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
				if err != nil {
					continue
				}

				for msg := range msgs.Messages() {
					m.processMessage(msg, processor)
				}
			}
		}
	}()

	return nil
}

// Stop stops the queue manager
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return
	}

	m.cancel()
	m.isRunning = false
	log.Println("Verification job worker stopped")
}

// Enqueue adds a job to the queue
func (m *Manager) Enqueue(job *Job) error {
	if err := m.store.Save(job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	data, err := job.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize job: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := m.js.Publish(ctx, SubjectName, data); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	m.events.Emit(job.ID, Event{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job queued",
	})

	return nil
}

// EnqueueWithIdempotency enqueues a job unless one with the same idempotency
// key already exists; the second return value reports a duplicate.
func (m *Manager) EnqueueWithIdempotency(job *Job) (*Job, bool, error) {
	if job.IdempotencyKey != "" {
		existingJob, exists := m.store.GetByIdempotencyKey(job.IdempotencyKey)
		if exists {
			return existingJob, true, nil
		}
	}

	if err := m.Enqueue(job); err != nil {
		return nil, false, err
	}

	return job, false, nil
}

// GetJob retrieves a job by ID
func (m *Manager) GetJob(jobID string) (*Job, error) {
	return m.store.Get(jobID)
}

// UpdateJob updates a job and emits an event
func (m *Manager) UpdateJob(job *Job) error {
	if err := m.store.Update(job); err != nil {
		return err
	}

	m.events.Emit(job.ID, Event{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  job.Message,
	})

	return nil
}

// CancelJob cancels a job
func (m *Manager) CancelJob(jobID string) (*Job, error) {
	job, err := m.store.Get(jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != JobStatusQueued && job.Status != JobStatusRunning {
		return nil, fmt.Errorf("cannot cancel job with status: %s", job.Status)
	}

	job.SetStatus(JobStatusCanceled)
	if err := m.store.Update(job); err != nil {
		return nil, err
	}

	m.events.Emit(job.ID, Event{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job canceled",
	})

	return job, nil
}

// Subscribe subscribes to job events
func (m *Manager) Subscribe(jobID string) <-chan Event {
	return m.events.Subscribe(jobID)
}

// Unsubscribe unsubscribes from job events
func (m *Manager) Unsubscribe(jobID string, ch <-chan Event) {
	m.events.Unsubscribe(jobID, ch)
}

// GetStore returns the job store
func (m *Manager) GetStore() *Store {
	return m.store
}

func (m *Manager) processMessage(msg jetstream.Msg, processor JobProcessor) {
	var job Job
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		log.Printf("Failed to unmarshal job: %v", err)
		msg.Ack()
		return
	}

	storedJob, err := m.store.Get(job.ID)
	if err != nil {
		log.Printf("Failed to get job from store: %v", err)
		msg.Ack()
		return
	}

	if storedJob.Status == JobStatusCanceled {
		msg.Ack()
		return
	}

	storedJob.SetStatus(JobStatusRunning)
	storedJob.SetProgress(0, "Verification started")
	m.UpdateJob(storedJob)

	timeout := storedJob.GetTimeoutDuration()
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	result, err := processor.Process(ctx, storedJob, func(progress int, message string) {
		storedJob.SetProgress(progress, message)
		m.UpdateJob(storedJob)
	})

	if err != nil {
		kind := ""
		if pe, ok := err.(*ProcessError); ok {
			kind = pe.Kind
		}
		storedJob.SetError(kind, err.Error())
		m.UpdateJob(storedJob)
		msg.Ack()
		return
	}

	storedJob.SetResult(result)
	m.UpdateJob(storedJob)
	msg.Ack()
}

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	Process(ctx context.Context, job *Job, progress func(int, string)) (interface{}, error)
}
