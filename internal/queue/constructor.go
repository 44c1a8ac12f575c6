package queue

import (
	"context"
	"time"

	"github.com/anterny/tokrelay/internal/repository"
	"github.com/anterny/tokrelay/internal/service"
	"github.com/anterny/tokrelay/internal/tiktok"
)

// Publisher runs the publish fallback chain for one delivery.
type Publisher interface {
	Publish(ctx context.Context, req *tiktok.Request) (*tiktok.Result, error)
}

// Limiter spaces out publish attempts per account label.
type Limiter interface {
	Reserve(label string) (time.Duration, func())
}

// CaptionConfig carries the caption rendering knobs.
type CaptionConfig struct {
	Template  string
	Hashtags  string
	MaxLength int
}

type Worker struct {
	deliveries repository.DeliveryRepository
	items      repository.ContentItemRepository
	accounts   repository.AccountRepository
	accountSvc service.AccountService
	fetcher    service.MediaFetcher
	publisher  Publisher
	limiter    Limiter
	enqueuer   service.TaskEnqueuer
	classifier tiktok.Classifier

	caption     CaptionConfig
	defaultMode string

	// Archive is optional; when set, published media is copied to R2 after
	// a successful delivery.
	Archive *service.ArchiveService
}

func NewWorker(
	deliveries repository.DeliveryRepository,
	items repository.ContentItemRepository,
	accounts repository.AccountRepository,
	accountSvc service.AccountService,
	fetcher service.MediaFetcher,
	publisher Publisher,
	limiter Limiter,
	enqueuer service.TaskEnqueuer,
	classifier tiktok.Classifier,
	caption CaptionConfig,
	defaultMode string) *Worker {
	if classifier == nil {
		classifier = tiktok.DefaultClassifier{}
	}
	return &Worker{
		deliveries:  deliveries,
		items:       items,
		accounts:    accounts,
		accountSvc:  accountSvc,
		fetcher:     fetcher,
		publisher:   publisher,
		limiter:     limiter,
		enqueuer:    enqueuer,
		classifier:  classifier,
		caption:     caption,
		defaultMode: defaultMode,
	}
}
