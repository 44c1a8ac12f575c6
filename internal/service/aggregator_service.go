package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/models"
	"github.com/anterny/tokrelay/internal/repository"
	"github.com/anterny/tokrelay/internal/transfer"
)

type AggregatorService interface {
	Ingest(ctx context.Context, frag *transfer.Fragment) error
	FlushDue(ctx context.Context, now time.Time) (int, error)
}

type aggregatorService struct {
	buffer   repository.GroupBufferRepository
	items    repository.ContentItemRepository
	dispatch DispatchService

	window time.Duration
	policy string
}

func NewAggregatorService(
	buffer repository.GroupBufferRepository,
	items repository.ContentItemRepository,
	dispatch DispatchService,
	window time.Duration,
	policy string) AggregatorService {
	return &aggregatorService{
		buffer:   buffer,
		items:    items,
		dispatch: dispatch,
		window:   window,
		policy:   policy,
	}
}

// Ingest routes a fragment. Grouped fragments go to the buffer and wait for
// the flush window; ungrouped ones become a content item immediately.
func (s *aggregatorService) Ingest(ctx context.Context, frag *transfer.Fragment) error {
	if frag.MediaGroupID != "" {
		inserted, err := s.buffer.Append(ctx, frag)
		if err != nil {
			return err
		}
		if !inserted {
			log.Debug().
				Str("media_group_id", frag.MediaGroupID).
				Int64("message_id", frag.SourceMessageID).
				Msg("duplicate group fragment ignored")
		}
		return nil
	}

	item := &models.ContentItem{
		ContentType:     frag.ContentType,
		SourceChatID:    frag.SourceChatID,
		SourceMessageID: frag.SourceMessageID,
		Caption:         frag.Caption,
		SourceText:      frag.Text,
		TelegramFileIDs: []string{frag.TelegramFileID},
	}
	id, err := s.items.Create(ctx, item)
	if err != nil {
		return err
	}
	item.ID = id

	return s.dispatch.Plan(ctx, item)
}

// FlushDue finalizes every buffered group whose window has elapsed and
// returns how many were flushed. With the idle policy a group is due when its
// newest fragment is older than the window; with the fixed policy, its oldest.
func (s *aggregatorService) FlushDue(ctx context.Context, now time.Time) (int, error) {
	threshold := now.Add(-s.window)
	groupIDs, err := s.buffer.DueGroupIDs(ctx, threshold, s.policy)
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, groupID := range groupIDs {
		if err := s.flushGroup(ctx, groupID); err != nil {
			return flushed, err
		}
		flushed++
	}
	return flushed, nil
}

func (s *aggregatorService) flushGroup(ctx context.Context, groupID string) error {
	fragments, err := s.buffer.ListGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(fragments) == 0 {
		return nil
	}
	fragmentIDs := make([]int64, len(fragments))
	for i, f := range fragments {
		fragmentIDs[i] = f.ID
	}

	item := buildGroupItem(groupID, fragments)
	id, err := s.items.Create(ctx, item)
	if err != nil {
		return err
	}
	item.ID = id

	// Plan before deleting the buffer rows. A crash in between re-flushes the
	// group, but the delivery rows' source key keeps the replay a no-op.
	if err := s.dispatch.Plan(ctx, item); err != nil {
		return err
	}

	log.Info().
		Str("media_group_id", groupID).
		Int("fragments", len(fragments)).
		Str("content_type", item.ContentType).
		Msg("media group flushed")

	// Delete only the rows that were listed. A fragment appended after the
	// listing is not part of this item and must survive for the next flush.
	return s.buffer.DeleteFragments(ctx, fragmentIDs)
}

// buildGroupItem collapses an ordered group of fragments into one content
// item. All-photo groups become an album. A group containing video keeps only
// the video fragments, since an album post cannot carry them.
func buildGroupItem(groupID string, fragments []*models.BufferedFragment) *models.ContentItem {
	first := fragments[0]

	var videoIDs, photoIDs []string
	caption, text := "", ""
	for _, f := range fragments {
		if f.ContentType == models.ContentTypeVideo {
			videoIDs = append(videoIDs, f.TelegramFileID)
		} else {
			photoIDs = append(photoIDs, f.TelegramFileID)
		}
		if caption == "" {
			caption = f.Caption
		}
		if text == "" {
			text = f.SourceText
		}
	}

	item := &models.ContentItem{
		SourceChatID:    first.SourceChatID,
		SourceMessageID: first.SourceMessageID,
		MediaGroupID:    groupID,
		Caption:         caption,
		SourceText:      text,
	}
	if len(videoIDs) > 0 {
		item.ContentType = models.ContentTypeVideo
		item.TelegramFileIDs = videoIDs
		if len(photoIDs) > 0 {
			log.Warn().
				Str("media_group_id", groupID).
				Int("photos_dropped", len(photoIDs)).
				Msg("mixed media group, keeping video only")
		}
	} else {
		item.ContentType = models.ContentTypeAlbum
		item.TelegramFileIDs = photoIDs
	}
	return item
}
