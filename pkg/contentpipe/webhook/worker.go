package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/queue"
)

const (
	// HeaderEvent carries the event type on every delivery.
	HeaderEvent = "X-Webhook-Event"
	// HeaderSignature carries the payload signature when the subscription
	// has a secret configured.
	HeaderSignature = "X-Webhook-Signature"

	deliveryTimeout  = 10 * time.Second
	maxResponseChars = 1000
)

// Sign computes the hex HMAC-SHA256 signature of body under the given secret.
// The signature covers the same byte sequence that is transmitted.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// DeliveryLog appends delivery outcomes. Satisfied by contentpipe.Repository.
type DeliveryLog interface {
	CreateDeliveryRecord(ctx context.Context, record *contentpipe.WebhookDeliveryRecord) error
}

// NewHTTPClient returns the delivery client: bounded timeout, redirects not
// followed.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: deliveryTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// NewDeliveryHandler returns the broker handler for webhook delivery jobs.
// Every attempt, successful or not, appends one delivery record; a failed
// attempt also returns the error so the broker's retry policy applies.
func NewDeliveryHandler(subs SubscriptionSource, deliveries DeliveryLog, client *http.Client, log *logger.Logger) queue.Handler {
	if client == nil {
		client = NewHTTPClient()
	}
	log = log.WithComponent("webhook-worker")

	return func(ctx context.Context, job *queue.Job) error {
		var req DeliveryJob
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			log.Error("discarding malformed delivery job", "job_id", job.ID, "error", err)
			return nil
		}

		sub, err := subs.GetSubscription(ctx, req.SubscriptionID)
		if err != nil {
			// The subscription was deleted after the event fired; nothing
			// left to deliver to.
			log.Warn("delivery target gone", "subscription_id", req.SubscriptionID)
			return nil
		}

		status, body, deliveryErr := deliver(ctx, client, sub, req.Payload)

		record := &contentpipe.WebhookDeliveryRecord{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			EventType:      contentpipe.EventType(req.Payload.Event),
			Payload:        snapshotPayload(req.Payload),
			HTTPStatus:     status,
			ResponseBody:   body,
			Success:        deliveryErr == nil,
			CreatedAt:      time.Now().UTC(),
		}
		if err := deliveries.CreateDeliveryRecord(ctx, record); err != nil {
			log.Error("recording delivery failed", "subscription_id", sub.ID, "error", err)
		}

		if deliveryErr != nil {
			return fmt.Errorf("deliver %s to %s: %w", req.Payload.Event, sub.EndpointURL, deliveryErr)
		}

		log.Info("webhook delivered",
			"subscription_id", sub.ID, "event", req.Payload.Event, "status", derefStatus(status))
		return nil
	}
}

// deliver posts the payload to the subscription endpoint. Success requires a
// 2xx status.
func deliver(ctx context.Context, client *http.Client, sub *contentpipe.WebhookSubscription, payload Payload) (*int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("serialize payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderEvent, payload.Event)
	if sub.Secret != "" {
		httpReq.Header.Set(HeaderSignature, Sign(sub.Secret, body))
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	truncated := readTruncated(resp.Body, maxResponseChars)
	status := resp.StatusCode

	if status < 200 || status > 299 {
		return &status, truncated, fmt.Errorf("endpoint returned status %d", status)
	}
	return &status, truncated, nil
}

func readTruncated(r io.Reader, limit int) string {
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return ""
	}
	if len(data) > limit {
		data = data[:limit]
	}
	return string(data)
}

func snapshotPayload(p Payload) map[string]interface{} {
	return map[string]interface{}{
		"event":     p.Event,
		"timestamp": p.Timestamp.UTC().Format(time.RFC3339),
		"data":      p.Data,
	}
}

func derefStatus(status *int) int {
	if status == nil {
		return 0
	}
	return *status
}
