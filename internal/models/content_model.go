package models

import (
	"fmt"
	"time"
)

const (
	ContentTypeVideo = "video"
	ContentTypePhoto = "photo"
	ContentTypeAlbum = "album"
)

// ContentItem is the finalized unit of work: one Telegram message, or one
// whole media group collapsed into a single item. Immutable after creation
// except for the cached local file paths and the processed marker.
type ContentItem struct {
	ID              int64      `db:"id" json:"id"`
	ContentType     string     `db:"content_type" json:"content_type"`
	SourceChatID    int64      `db:"source_chat_id" json:"source_chat_id"`
	SourceMessageID int64      `db:"source_message_id" json:"source_message_id"`
	MediaGroupID    string     `db:"media_group_id" json:"media_group_id"`
	Caption         string     `db:"caption" json:"caption"`
	SourceText      string     `db:"source_text" json:"source_text"`
	TelegramFileIDs []string   `db:"telegram_file_ids" json:"telegram_file_ids"`
	LocalFiles      []string   `db:"local_files" json:"local_files"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at"`
}

// SourceKey is the stable identity of the originating message or media
// group. Together with an account label it keys the delivery ledger.
func (c *ContentItem) SourceKey() string {
	if c.MediaGroupID != "" {
		return fmt.Sprintf("group:%d:%s", c.SourceChatID, c.MediaGroupID)
	}
	return fmt.Sprintf("msg:%d:%d", c.SourceChatID, c.SourceMessageID)
}

// BufferedFragment is one row of the media-group buffer: a single album part
// waiting for its group's buffering window to elapse.
type BufferedFragment struct {
	ID              int64     `db:"id"`
	MediaGroupID    string    `db:"media_group_id"`
	SourceChatID    int64     `db:"source_chat_id"`
	SourceMessageID int64     `db:"source_message_id"`
	ContentType     string    `db:"content_type"`
	TelegramFileID  string    `db:"telegram_file_id"`
	Caption         string    `db:"caption"`
	SourceText      string    `db:"source_text"`
	CreatedAt       time.Time `db:"created_at"`
}
