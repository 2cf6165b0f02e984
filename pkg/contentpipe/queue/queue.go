// Package queue provides the asynchronous job broker used by the derived-asset
// and webhook workers. Delivery is at-least-once: a failed job is redelivered
// with backoff until the configured attempt budget is spent, after which it is
// permanently dropped. Handlers must therefore be idempotent or tolerate
// duplicate execution.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
)

// ErrClosed is returned by Enqueue after the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Job is a single unit of work. Attempt starts at 1 and increments on each
// redelivery.
type Job struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
	Attempt int    `json:"attempt"`
}

// Handler processes a job. A non-nil error triggers redelivery until the
// attempt budget is spent.
type Handler func(ctx context.Context, job *Job) error

// Queue is the broker interface for message passing between the service and
// its workers.
type Queue interface {
	Enqueue(ctx context.Context, topic string, payload []byte) error
	Consume(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Config controls consumer behavior shared by all broker implementations.
type Config struct {
	// Concurrency is the number of concurrent consumers per topic.
	Concurrency int
	// MaxAttempts is the total attempt budget per job, including the first.
	MaxAttempts int
	// Backoff returns the delay before redelivering a job that failed on
	// the given attempt.
	Backoff func(attempt int) time.Duration
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Backoff == nil {
		c.Backoff = ExponentialBackoff(100 * time.Millisecond)
	}
}

// ExponentialBackoff returns a backoff function doubling the base delay on
// every attempt.
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
		}
		return d
	}
}

// Memory is an in-process queue backed by buffered channels, one per topic.
// Topic channels are never closed; shutdown is signalled through done so a
// retry goroutine waking from its backoff cannot send on a closed channel.
type Memory struct {
	mu     sync.Mutex
	topics map[string]chan *Job
	cfg    Config
	log    *logger.Logger
	wg     sync.WaitGroup
	done   chan struct{}
	closed bool
}

// NewMemory creates a new in-memory queue.
func NewMemory(cfg Config, log *logger.Logger) *Memory {
	cfg.applyDefaults()
	return &Memory{
		topics: make(map[string]chan *Job),
		cfg:    cfg,
		log:    log.WithComponent("queue"),
		done:   make(chan struct{}),
	}
}

func (q *Memory) channel(topic string) chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.topics[topic]
	if !ok {
		ch = make(chan *Job, 1024)
		q.topics[topic] = ch
	}
	return ch
}

// Enqueue publishes a job to a topic.
func (q *Memory) Enqueue(ctx context.Context, topic string, payload []byte) error {
	job := &Job{
		ID:      uuid.NewString(),
		Topic:   topic,
		Payload: payload,
		Attempt: 1,
	}
	return q.deliver(ctx, job)
}

func (q *Memory) deliver(ctx context.Context, job *Job) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.channel(job.Topic) <- job:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume starts cfg.Concurrency consumers for the topic. It returns
// immediately; consumers run until the context is cancelled.
func (q *Memory) Consume(ctx context.Context, topic string, handler Handler) error {
	ch := q.channel(topic)

	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case job := <-ch:
					q.process(ctx, job, handler)
				}
			}
		}()
	}

	return nil
}

func (q *Memory) process(ctx context.Context, job *Job, handler Handler) {
	err := handler(ctx, job)
	if err == nil {
		return
	}

	if job.Attempt >= q.cfg.MaxAttempts {
		// Attempt budget spent: the job is dropped for good. There is no
		// dead-letter channel; the log line is the only trace.
		q.log.Error("dropping job after final attempt",
			"topic", job.Topic, "job_id", job.ID, "attempts", job.Attempt, "error", err)
		return
	}

	q.log.Warn("job failed, scheduling retry",
		"topic", job.Topic, "job_id", job.ID, "attempt", job.Attempt, "error", err)

	delay := q.cfg.Backoff(job.Attempt)
	job.Attempt++

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case <-ctx.Done():
		case <-q.done:
		case <-time.After(delay):
			if err := q.deliver(ctx, job); err != nil && !errors.Is(err, ErrClosed) {
				q.log.Error("redelivery failed", "topic", job.Topic, "job_id", job.ID, "error", err)
			}
		}
	}()
}

// Close stops consumers and pending retries, then waits for them to drain.
// Jobs still buffered in topic channels are discarded.
func (q *Memory) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
