package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/models"
	"github.com/anterny/tokrelay/internal/repository"
)

// TaskEnqueuer hands delivery work to the background queue. Implemented by
// the queue client; defined here so services do not depend on the queue
// package.
type TaskEnqueuer interface {
	EnqueueDelivery(ctx context.Context, deliveryID int64, delay time.Duration) error
}

type DispatchService interface {
	Plan(ctx context.Context, item *models.ContentItem) error
}

type dispatchService struct {
	accounts   repository.AccountRepository
	deliveries repository.DeliveryRepository
	enqueuer   TaskEnqueuer
	mapping    map[int64][]string
}

func NewDispatchService(
	accounts repository.AccountRepository,
	deliveries repository.DeliveryRepository,
	enqueuer TaskEnqueuer,
	mapping map[int64][]string) DispatchService {
	return &dispatchService{
		accounts:   accounts,
		deliveries: deliveries,
		enqueuer:   enqueuer,
		mapping:    mapping,
	}
}

// Plan fans a content item out to its target accounts. One delivery row per
// account, keyed by (source_key, account_label), so replanning the same item
// never duplicates work or enqueues twice.
func (s *dispatchService) Plan(ctx context.Context, item *models.ContentItem) error {
	accounts, err := s.targetAccounts(ctx, item.SourceChatID)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		log.Warn().
			Int64("chat_id", item.SourceChatID).
			Int64("content_item_id", item.ID).
			Msg("no target accounts for content item")
		return nil
	}

	sourceKey := item.SourceKey()
	for _, acc := range accounts {
		d := &models.Delivery{
			ContentItemID: item.ID,
			SourceKey:     sourceKey,
			AccountLabel:  acc.AccountLabel,
		}
		id, inserted, err := s.deliveries.CreateIfAbsent(ctx, d)
		if err != nil {
			return err
		}
		if !inserted {
			log.Debug().
				Str("source_key", sourceKey).
				Str("account", acc.AccountLabel).
				Msg("delivery already planned, skipping")
			continue
		}
		if err := s.enqueuer.EnqueueDelivery(ctx, id, 0); err != nil {
			return err
		}
		log.Info().
			Int64("delivery_id", id).
			Str("source_key", sourceKey).
			Str("account", acc.AccountLabel).
			Msg("delivery planned")
	}
	return nil
}

func (s *dispatchService) targetAccounts(ctx context.Context, chatID int64) ([]*models.TikTokAccount, error) {
	if labels, ok := s.mapping[chatID]; ok {
		return s.accounts.ListByLabels(ctx, labels)
	}
	return s.accounts.ListAll(ctx)
}
