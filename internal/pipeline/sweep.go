package pipeline

import (
	"context"
	"time"

	"parley/internal/logging"
	"parley/internal/services"
	"parley/internal/store"
)

// handleSweep deletes orphaned blobs: files in the blob store older than the
// retention threshold that no audio part still references. Per-blob failures
// are logged and skipped so one bad file cannot wedge the sweep.
func (p *Pipeline) handleSweep(ctx context.Context, _ *store.Task) error {
	cutoff := time.Now().Add(-time.Duration(p.cfg.Retention.MinAgeSeconds) * time.Second)
	blobs, err := p.blobs.ListOlderThan(cutoff)
	if err != nil {
		return services.Wrap(services.ErrTransient, "sweep", "list blobs", "", err)
	}

	var removed, kept, failed int
	for _, blob := range blobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		inUse, err := p.store.BlobRefInUse(ctx, blob.Ref)
		if err != nil {
			failed++
			p.logger.Warn("sweep reference check failed",
				logging.String(logging.FieldBlobRef, blob.Ref),
				logging.Error(err),
			)
			continue
		}
		if inUse {
			kept++
			continue
		}
		if err := p.blobs.Delete(blob.Ref); err != nil {
			failed++
			p.logger.Warn("sweep delete failed",
				logging.String(logging.FieldBlobRef, blob.Ref),
				logging.Error(err),
			)
			continue
		}
		removed++
		p.logger.Info("orphaned blob removed",
			logging.String(logging.FieldBlobRef, blob.Ref),
			logging.Int("size_bytes", int(blob.Size)),
			logging.String(logging.FieldEventType, "blob_swept"),
		)
	}

	p.logger.Info("retention sweep finished",
		logging.Int("candidates", len(blobs)),
		logging.Int("removed", removed),
		logging.Int("kept", kept),
		logging.Int("failed", failed),
		logging.String(logging.FieldEventType, "sweep_finished"),
	)
	return nil
}
