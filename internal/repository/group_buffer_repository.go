package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	config "github.com/anterny/tokrelay/configs"
	"github.com/anterny/tokrelay/internal/models"
	"github.com/anterny/tokrelay/internal/transfer"
)

type GroupBufferRepository interface {
	// Append adds one album fragment. It returns false when the exact
	// fragment was buffered before (replayed intake).
	Append(ctx context.Context, f *transfer.Fragment) (bool, error)
	// DueGroupIDs lists groups whose buffering window elapsed at threshold,
	// per the configured window policy.
	DueGroupIDs(ctx context.Context, threshold time.Time, policy string) ([]string, error)
	ListGroup(ctx context.Context, mediaGroupID string) ([]*models.BufferedFragment, error)
	// DeleteFragments removes exactly the listed rows. Fragments appended
	// after a listing stay buffered for the next flush.
	DeleteFragments(ctx context.Context, ids []int64) error
}

type groupBufferRepository struct {
	db *sql.DB
}

func NewGroupBufferRepository(db *sql.DB) GroupBufferRepository {
	return &groupBufferRepository{db: db}
}

func (r *groupBufferRepository) Append(ctx context.Context, f *transfer.Fragment) (bool, error) {
	query := `
		INSERT INTO media_group_buffer(
			media_group_id,
			source_chat_id,
			source_message_id,
			content_type,
			telegram_file_id,
			caption,
			source_text,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT uq_media_group_buffer_item DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		f.MediaGroupID,
		f.SourceChatID,
		f.SourceMessageID,
		f.ContentType,
		f.TelegramFileID,
		f.Caption,
		f.Text,
		f.ReceivedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *groupBufferRepository) DueGroupIDs(ctx context.Context, threshold time.Time, policy string) ([]string, error) {
	// Idle policy: due once no fragment arrived for a full window, so the
	// deadline follows the newest fragment. Fixed policy: due a window after
	// the first fragment regardless of later arrivals.
	aggregate := "max(created_at)"
	if policy == config.WindowPolicyFixed {
		aggregate = "min(created_at)"
	}

	query := `
		SELECT media_group_id
		FROM media_group_buffer
		GROUP BY media_group_id
		HAVING ` + aggregate + ` <= $1
	`
	rows, err := r.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *groupBufferRepository) ListGroup(ctx context.Context, mediaGroupID string) ([]*models.BufferedFragment, error) {
	query := `
		SELECT id, media_group_id, source_chat_id, source_message_id,
			content_type, telegram_file_id, caption, source_text, created_at
		FROM media_group_buffer
		WHERE media_group_id = $1
		ORDER BY source_message_id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, mediaGroupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fragments []*models.BufferedFragment
	for rows.Next() {
		var f models.BufferedFragment
		err := rows.Scan(&f.ID, &f.MediaGroupID, &f.SourceChatID, &f.SourceMessageID,
			&f.ContentType, &f.TelegramFileID, &f.Caption, &f.SourceText, &f.CreatedAt)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, &f)
	}
	return fragments, rows.Err()
}

func (r *groupBufferRepository) DeleteFragments(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `DELETE FROM media_group_buffer WHERE id = ANY($1)`
	_, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	return err
}
