package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/queue"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/repo/memory"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/webhook"
)

func TestSign(t *testing.T) {
	t.Run("known vector", func(t *testing.T) {
		body := []byte(`{"event":"file.created","timestamp":"2024-01-01T00:00:00Z","data":{}}`)
		sig := webhook.Sign("s3cr3t", body)
		assert.Equal(t, "1cb63b6673448b34346b347a61c3a525829c44aa87cb8a89ec7ff4cde902bfe2", sig)
	})

	t.Run("different secrets produce different signatures", func(t *testing.T) {
		body := []byte(`{"event":"file.created"}`)
		assert.NotEqual(t, webhook.Sign("one", body), webhook.Sign("two", body))
	})
}

func createSubscription(t *testing.T, repo contentpipe.Repository, endpoint, secret string, events ...contentpipe.EventType) *contentpipe.WebhookSubscription {
	t.Helper()

	now := time.Now().UTC()
	sub := &contentpipe.WebhookSubscription{
		ID:          uuid.New(),
		EndpointURL: endpoint,
		Secret:      secret,
		Active:      true,
		EventTypes:  events,
		OwnerID:     uuid.New(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.CreateSubscription(context.Background(), sub))
	return sub
}

func deliveryJobPayload(t *testing.T, subID uuid.UUID, event string) []byte {
	t.Helper()

	payload, err := json.Marshal(webhook.DeliveryJob{
		SubscriptionID: subID,
		Payload: webhook.Payload{
			Event:     event,
			Timestamp: time.Now().UTC(),
			Data:      map[string]interface{}{"path": "a.txt"},
		},
	})
	require.NoError(t, err)
	return payload
}

func TestDeliveryHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("successful delivery posts signed payload and records it", func(t *testing.T) {
		repo := memory.New()

		var gotEvent, gotSignature atomic.Value
		var gotBody atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotEvent.Store(r.Header.Get(webhook.HeaderEvent))
			gotSignature.Store(r.Header.Get(webhook.HeaderSignature))
			body, _ := io.ReadAll(r.Body)
			gotBody.Store(body)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("received"))
		}))
		defer server.Close()

		sub := createSubscription(t, repo, server.URL, "topsecret", contentpipe.EventFileCreated)
		handler := webhook.NewDeliveryHandler(repo, repo, nil, logger.NewNop())

		err := handler(ctx, &queue.Job{
			ID:      uuid.NewString(),
			Payload: deliveryJobPayload(t, sub.ID, "file.created"),
			Attempt: 1,
		})
		require.NoError(t, err)

		assert.Equal(t, "file.created", gotEvent.Load())
		// Signature covers the transmitted bytes exactly
		assert.Equal(t, webhook.Sign("topsecret", gotBody.Load().([]byte)), gotSignature.Load())

		records, err := repo.ListDeliveryRecords(ctx, sub.ID, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].Success)
		require.NotNil(t, records[0].HTTPStatus)
		assert.Equal(t, http.StatusOK, *records[0].HTTPStatus)
		assert.Equal(t, "received", records[0].ResponseBody)
	})

	t.Run("no signature header without a secret", func(t *testing.T) {
		repo := memory.New()

		var gotSignature atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotSignature.Store(r.Header.Get(webhook.HeaderSignature))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		sub := createSubscription(t, repo, server.URL, "", contentpipe.EventFileCreated)
		handler := webhook.NewDeliveryHandler(repo, repo, nil, logger.NewNop())

		err := handler(ctx, &queue.Job{
			ID:      uuid.NewString(),
			Payload: deliveryJobPayload(t, sub.ID, "file.created"),
			Attempt: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, "", gotSignature.Load())
	})

	t.Run("non-2xx is a failed attempt with a record", func(t *testing.T) {
		repo := memory.New()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		}))
		defer server.Close()

		sub := createSubscription(t, repo, server.URL, "", contentpipe.EventFileDeleted)
		handler := webhook.NewDeliveryHandler(repo, repo, nil, logger.NewNop())

		err := handler(ctx, &queue.Job{
			ID:      uuid.NewString(),
			Payload: deliveryJobPayload(t, sub.ID, "file.deleted"),
			Attempt: 1,
		})
		require.Error(t, err)

		records, err := repo.ListDeliveryRecords(ctx, sub.ID, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.False(t, records[0].Success)
		require.NotNil(t, records[0].HTTPStatus)
		assert.Equal(t, http.StatusInternalServerError, *records[0].HTTPStatus)
	})

	t.Run("unreachable endpoint records a nil status", func(t *testing.T) {
		repo := memory.New()

		sub := createSubscription(t, repo, "http://127.0.0.1:1", "", contentpipe.EventFileCreated)
		handler := webhook.NewDeliveryHandler(repo, repo, nil, logger.NewNop())

		err := handler(ctx, &queue.Job{
			ID:      uuid.NewString(),
			Payload: deliveryJobPayload(t, sub.ID, "file.created"),
			Attempt: 1,
		})
		require.Error(t, err)

		records, err := repo.ListDeliveryRecords(ctx, sub.ID, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.False(t, records[0].Success)
		assert.Nil(t, records[0].HTTPStatus)
	})

	t.Run("response body is truncated to 1000 characters", func(t *testing.T) {
		repo := memory.New()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(strings.Repeat("x", 5000)))
		}))
		defer server.Close()

		sub := createSubscription(t, repo, server.URL, "", contentpipe.EventFileCreated)
		handler := webhook.NewDeliveryHandler(repo, repo, nil, logger.NewNop())

		err := handler(ctx, &queue.Job{
			ID:      uuid.NewString(),
			Payload: deliveryJobPayload(t, sub.ID, "file.created"),
			Attempt: 1,
		})
		require.NoError(t, err)

		records, err := repo.ListDeliveryRecords(ctx, sub.ID, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Len(t, records[0].ResponseBody, 1000)
	})

	t.Run("deleted subscription ends retries quietly", func(t *testing.T) {
		repo := memory.New()
		handler := webhook.NewDeliveryHandler(repo, repo, nil, logger.NewNop())

		err := handler(ctx, &queue.Job{
			ID:      uuid.NewString(),
			Payload: deliveryJobPayload(t, uuid.New(), "file.created"),
			Attempt: 1,
		})
		assert.NoError(t, err)
	})

	t.Run("malformed job is discarded without retry", func(t *testing.T) {
		repo := memory.New()
		handler := webhook.NewDeliveryHandler(repo, repo, nil, logger.NewNop())

		err := handler(ctx, &queue.Job{ID: uuid.NewString(), Payload: []byte("{not json"), Attempt: 1})
		assert.NoError(t, err)
	})
}

func TestDeliveryRetriesThroughBroker(t *testing.T) {
	repo := memory.New()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sub := createSubscription(t, repo, server.URL, "", contentpipe.EventFileCreated)

	broker := queue.NewMemory(queue.Config{
		Concurrency: 1,
		MaxAttempts: 5,
		Backoff:     func(int) time.Duration { return time.Millisecond },
	}, logger.NewNop())
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := webhook.NewDeliveryHandler(repo, repo, nil, logger.NewNop())
	require.NoError(t, broker.Consume(ctx, webhook.TopicDeliver, handler))

	dispatcher := webhook.NewDispatcher(repo, broker, logger.NewNop())
	require.NoError(t, dispatcher.Trigger(ctx, contentpipe.EventFileCreated, time.Now(), map[string]interface{}{"path": "a.txt"}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hits.Load() < 5 {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, int32(5), hits.Load())

	// Budget spent: no sixth attempt, and an audit record per attempt
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(5), hits.Load())

	records, err := repo.ListDeliveryRecords(context.Background(), sub.ID, 10)
	require.NoError(t, err)
	assert.Len(t, records, 5)
	for _, record := range records {
		assert.False(t, record.Success)
	}
}
