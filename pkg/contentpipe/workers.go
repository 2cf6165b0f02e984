package contentpipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/queue"
)

// NewDerivedAssetHandler returns the broker handler for variant generation
// jobs. Generation is an idempotent upsert, so redelivered jobs land on the
// same row.
func NewDerivedAssetHandler(svc Service, log *logger.Logger) queue.Handler {
	log = log.WithComponent("derived-worker")

	return func(ctx context.Context, job *queue.Job) error {
		var req DerivedAssetJob
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			// Malformed payloads never become valid; report without error
			// so the broker does not retry.
			log.Error("discarding malformed derived job", "job_id", job.ID, "error", err)
			return nil
		}

		asset, err := svc.GenerateVariant(ctx, req.ObjectID, req.VariantKey, req.Options)
		if err != nil {
			// The source object may have been deleted between enqueue and
			// processing; nothing to generate then.
			if errors.Is(err, ErrNotFound) {
				log.Warn("derived job references missing object",
					"object_id", req.ObjectID, "variant", req.VariantKey)
				return nil
			}
			return fmt.Errorf("generate variant %s for %s: %w", req.VariantKey, req.ObjectID, err)
		}

		log.Info("variant generated",
			"object_id", req.ObjectID, "variant", asset.VariantKey,
			"width", asset.Width, "height", asset.Height, "size", asset.Size)
		return nil
	}
}
