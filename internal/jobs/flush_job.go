package job

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/service"
)

type FlushJob struct {
	aggregator service.AggregatorService
}

func NewFlushJob(aggregator service.AggregatorService) *FlushJob {
	return &FlushJob{aggregator: aggregator}
}

// FlushGroups finalizes buffered media groups whose window has elapsed. It
// runs frequently and on startup, so groups left behind by a crash are caught
// up immediately.
func (j *FlushJob) FlushGroups() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	flushed, err := j.aggregator.FlushDue(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("media group flush failed")
		return
	}
	if flushed > 0 {
		log.Info().Int("groups", flushed).Msg("flushed due media groups")
	}
}
