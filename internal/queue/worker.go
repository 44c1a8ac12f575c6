package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/media"
	"github.com/anterny/tokrelay/internal/models"
	"github.com/anterny/tokrelay/internal/service"
	"github.com/anterny/tokrelay/internal/tiktok"
)

// reEnqueueThreshold is the longest rate limit wait served inline. Longer
// waits give the worker slot back and reschedule the task instead.
const reEnqueueThreshold = 2 * time.Second

// HandleDeliveryTask executes one delivery attempt end to end: claim the row,
// fetch media, publish with fallback, record the outcome. The handler is safe
// to replay; terminal deliveries are dropped without side effects.
func (w *Worker) HandleDeliveryTask(ctx context.Context, task *asynq.Task) error {
	var payload DeliveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("bad delivery payload: %v: %w", err, asynq.SkipRetry)
	}

	d, err := w.deliveries.GetByID(ctx, payload.DeliveryID)
	if err != nil {
		return err
	}
	if d == nil {
		log.Warn().Int64("delivery_id", payload.DeliveryID).Msg("delivery row missing, dropping task")
		return nil
	}
	if d.Terminal() {
		log.Debug().Int64("delivery_id", d.ID).Str("status", d.Status).Msg("delivery already terminal, dropping task")
		return nil
	}

	if w.limiter != nil {
		delay, cancel := w.limiter.Reserve(d.AccountLabel)
		if delay > reEnqueueThreshold {
			cancel()
			log.Debug().Int64("delivery_id", d.ID).Dur("delay", delay).Msg("rate limited, rescheduling")
			return w.enqueuer.EnqueueDelivery(ctx, d.ID, delay)
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				cancel()
				return ctx.Err()
			}
		}
	}

	claimed, err := w.deliveries.ClaimInProgress(ctx, d.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	return w.attempt(ctx, d)
}

func (w *Worker) attempt(ctx context.Context, d *models.Delivery) error {
	item, err := w.items.GetByID(ctx, d.ContentItemID)
	if err != nil {
		return w.transient(ctx, d, nil, err)
	}
	if item == nil {
		return w.permanent(ctx, d, nil, errors.New("content item missing"))
	}

	acc, err := w.accounts.GetByLabel(ctx, d.AccountLabel)
	if err != nil {
		return w.transient(ctx, d, nil, err)
	}
	if acc == nil {
		return w.permanent(ctx, d, nil, fmt.Errorf("account %s not registered", d.AccountLabel))
	}

	accessToken, err := w.accountSvc.EnsureAccessToken(ctx, acc)
	if err != nil {
		if errors.Is(err, service.ErrAccountUnusable) {
			return w.permanent(ctx, d, nil, err)
		}
		return w.transient(ctx, d, nil, err)
	}

	localFiles, err := w.fetcher.EnsureLocalFiles(ctx, item)
	if err != nil {
		return w.transient(ctx, d, nil, err)
	}

	mode := acc.PostingMode
	if mode == "" {
		mode = w.defaultMode
	}

	req := &tiktok.Request{
		ContentType: item.ContentType,
		LocalFiles:  localFiles,
		Caption:     media.BuildCaption(item.Caption, item.SourceText, w.caption.Template, w.caption.Hashtags, w.caption.MaxLength),
		AccessToken: accessToken,
		Mode:        mode,
	}

	result, err := w.publisher.Publish(ctx, req)
	if err != nil {
		var renderErr *media.RenderError
		if errors.As(err, &renderErr) {
			return w.permanent(ctx, d, result.AttemptedModes, err)
		}
		switch w.classifier.Classify(err) {
		case tiktok.ErrorCapability, tiktok.ErrorPermanent:
			return w.permanent(ctx, d, result.AttemptedModes, err)
		default:
			return w.transient(ctx, d, result.AttemptedModes, err)
		}
	}

	if err := w.deliveries.MarkSucceeded(ctx, d.ID, result.AttemptedModes, result.PostID); err != nil {
		return err
	}
	if err := w.items.MarkProcessed(ctx, item.ID); err != nil {
		log.Warn().Err(err).Int64("content_item_id", item.ID).Msg("failed to mark content item processed")
	}
	w.archiveFiles(ctx, d, localFiles)

	log.Info().
		Int64("delivery_id", d.ID).
		Str("account", d.AccountLabel).
		Str("mode", result.Mode).
		Bool("slideshow", result.UsedSlideshow).
		Str("post_id", result.PostID).
		Msg("delivery succeeded")
	return nil
}

// archiveFiles copies the delivered media to R2 when archival is configured.
// Failures are already logged inside Archive and never affect the delivery.
func (w *Worker) archiveFiles(ctx context.Context, d *models.Delivery, localFiles []string) {
	if w.Archive == nil || !w.Archive.Enabled() {
		return
	}
	for _, path := range localFiles {
		payload, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping archive of unreadable file")
			continue
		}
		w.Archive.Archive(ctx, d.SourceKey, payload, media.ContentTypeOf(payload))
	}
}

// permanent ends the delivery. The task itself reports success so asynq does
// not retry a decision that will not change.
func (w *Worker) permanent(ctx context.Context, d *models.Delivery, attemptedModes []string, cause error) error {
	log.Warn().
		Int64("delivery_id", d.ID).
		Str("account", d.AccountLabel).
		Err(cause).
		Msg("delivery failed permanently")
	return w.deliveries.MarkFailedPermanent(ctx, d.ID, attemptedModes, cause.Error())
}

// transient records diagnostics and returns the error so asynq retries with
// backoff. The final allowed attempt is converted to a permanent failure.
func (w *Worker) transient(ctx context.Context, d *models.Delivery, attemptedModes []string, cause error) error {
	if err := w.deliveries.RecordAttemptError(ctx, d.ID, attemptedModes, cause.Error()); err != nil {
		log.Error().Err(err).Int64("delivery_id", d.ID).Msg("failed to record attempt error")
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if maxRetry > 0 && retried >= maxRetry {
		return w.permanent(ctx, d, attemptedModes, fmt.Errorf("retries exhausted: %w", cause))
	}

	log.Info().
		Int64("delivery_id", d.ID).
		Int("retried", retried).
		Err(cause).
		Msg("delivery attempt failed, will retry")
	return cause
}
