package job

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/repository"
	"github.com/anterny/tokrelay/internal/service"
)

// staleGrace is how long a delivery may sit in in_progress before it is
// assumed orphaned by a crashed worker and re-enqueued.
const staleGrace = 15 * time.Minute

type RecoveryJob struct {
	deliveries repository.DeliveryRepository
	enqueuer   service.TaskEnqueuer
}

func NewRecoveryJob(deliveries repository.DeliveryRepository, enqueuer service.TaskEnqueuer) *RecoveryJob {
	return &RecoveryJob{
		deliveries: deliveries,
		enqueuer:   enqueuer,
	}
}

// RecoverStale re-enqueues deliveries stuck in in_progress past the grace
// period. Claiming tolerates the in_progress state, so a worker that is
// merely slow only costs a duplicate attempt, never a duplicate post of a
// completed delivery.
func (j *RecoveryJob) RecoverStale() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ids, err := j.deliveries.ListStaleInProgress(ctx, time.Now().Add(-staleGrace))
	if err != nil {
		log.Error().Err(err).Msg("failed to list stale deliveries")
		return
	}

	for _, id := range ids {
		if err := j.enqueuer.EnqueueDelivery(ctx, id, 0); err != nil {
			log.Error().Err(err).Int64("delivery_id", id).Msg("failed to re-enqueue stale delivery")
			continue
		}
		log.Warn().Int64("delivery_id", id).Msg("stale delivery re-enqueued")
	}
}
