package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/anterny/tokrelay/internal/models"
)

type ContentItemRepository interface {
	Create(ctx context.Context, item *models.ContentItem) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ContentItem, error)
	SetLocalFiles(ctx context.Context, id int64, localFiles []string) error
	MarkProcessed(ctx context.Context, id int64) error
}

type contentItemRepository struct {
	db *sql.DB
}

func NewContentItemRepository(db *sql.DB) ContentItemRepository {
	return &contentItemRepository{db: db}
}

func (r *contentItemRepository) Create(ctx context.Context, item *models.ContentItem) (int64, error) {
	fileIDs, err := json.Marshal(orEmpty(item.TelegramFileIDs))
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO content_items(
			content_type,
			source_chat_id,
			source_message_id,
			media_group_id,
			caption,
			source_text,
			telegram_file_ids
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err = r.db.QueryRowContext(ctx, query,
		item.ContentType,
		item.SourceChatID,
		item.SourceMessageID,
		item.MediaGroupID,
		item.Caption,
		item.SourceText,
		fileIDs,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *contentItemRepository) GetByID(ctx context.Context, id int64) (*models.ContentItem, error) {
	query := `
		SELECT id, content_type, source_chat_id, source_message_id, media_group_id,
			caption, source_text, telegram_file_ids, local_files, created_at, processed_at
		FROM content_items
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var item models.ContentItem
	var fileIDs, localFiles []byte
	var processedAt sql.NullTime
	err := row.Scan(&item.ID, &item.ContentType, &item.SourceChatID, &item.SourceMessageID,
		&item.MediaGroupID, &item.Caption, &item.SourceText, &fileIDs, &localFiles,
		&item.CreatedAt, &processedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(fileIDs, &item.TelegramFileIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(localFiles, &item.LocalFiles); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		item.ProcessedAt = &processedAt.Time
	}
	return &item, nil
}

func (r *contentItemRepository) SetLocalFiles(ctx context.Context, id int64, localFiles []string) error {
	payload, err := json.Marshal(orEmpty(localFiles))
	if err != nil {
		return err
	}
	query := `UPDATE content_items SET local_files = $2 WHERE id = $1`
	_, err = r.db.ExecContext(ctx, query, id, payload)
	return err
}

func (r *contentItemRepository) MarkProcessed(ctx context.Context, id int64) error {
	query := `UPDATE content_items SET processed_at = now() WHERE id = $1 AND processed_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// orEmpty keeps JSON columns as [] instead of null for nil slices.
func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
