package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
)

const listPrefix = "contentpipe:queue:"

// Redis is a list-backed queue on a shared redis instance. Jobs are JSON
// envelopes pushed with LPUSH and popped with BRPOP, so multiple worker
// processes can consume the same topic.
type Redis struct {
	client *redis.Client
	cfg    Config
	log    *logger.Logger
	wg     sync.WaitGroup
	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewRedis creates a redis-backed queue from an existing client.
func NewRedis(client *redis.Client, cfg Config, log *logger.Logger) *Redis {
	cfg.applyDefaults()
	return &Redis{
		client: client,
		cfg:    cfg,
		log:    log.WithComponent("queue"),
		done:   make(chan struct{}),
	}
}

// Enqueue publishes a job to a topic.
func (q *Redis) Enqueue(ctx context.Context, topic string, payload []byte) error {
	job := &Job{
		ID:      uuid.NewString(),
		Topic:   topic,
		Payload: payload,
		Attempt: 1,
	}
	return q.push(ctx, job)
}

func (q *Redis) push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, listPrefix+job.Topic, data).Err(); err != nil {
		return fmt.Errorf("enqueue to %s: %w", job.Topic, err)
	}
	return nil
}

// Consume starts cfg.Concurrency consumers for the topic. It returns
// immediately; consumers run until the context is cancelled.
func (q *Redis) Consume(ctx context.Context, topic string, handler Handler) error {
	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.consumeLoop(ctx, topic, handler)
		}()
	}
	return nil
}

func (q *Redis) consumeLoop(ctx context.Context, topic string, handler Handler) {
	key := listPrefix + topic
	for {
		select {
		case <-q.done:
			return
		default:
		}
		if ctx.Err() != nil {
			return
		}

		// The one-second pop timeout bounds how long a consumer takes
		// to notice Close.
		res, err := q.client.BRPop(ctx, time.Second, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			q.log.Error("brpop failed", "topic", topic, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.log.Error("discarding malformed job", "topic", topic, "error", err)
			continue
		}

		if err := handler(ctx, &job); err != nil {
			q.retry(ctx, &job, err)
		}
	}
}

func (q *Redis) retry(ctx context.Context, job *Job, cause error) {
	if job.Attempt >= q.cfg.MaxAttempts {
		q.log.Error("dropping job after final attempt",
			"topic", job.Topic, "job_id", job.ID, "attempts", job.Attempt, "error", cause)
		return
	}

	q.log.Warn("job failed, scheduling retry",
		"topic", job.Topic, "job_id", job.ID, "attempt", job.Attempt, "error", cause)

	delay := q.cfg.Backoff(job.Attempt)
	job.Attempt++

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case <-ctx.Done():
		case <-q.done:
		case <-time.After(delay):
			if err := q.push(context.WithoutCancel(ctx), job); err != nil {
				q.log.Error("redelivery failed", "topic", job.Topic, "job_id", job.ID, "error", err)
			}
		}
	}()
}

// Close stops consumer loops and pending retries and waits for them to drain.
// It does not require the consume context to be cancelled first. The redis
// client is owned by the caller and is not closed here.
func (q *Redis) Close() error {
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
