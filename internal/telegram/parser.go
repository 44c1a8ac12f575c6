package telegram

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/anterny/tokrelay/internal/models"
	"github.com/anterny/tokrelay/internal/transfer"
)

// ParseMessage maps a Telegram message onto a media fragment. Messages without
// usable media return nil.
func ParseMessage(m *tele.Message) *transfer.Fragment {
	if m == nil {
		return nil
	}

	frag := &transfer.Fragment{
		SourceChatID:    m.Chat.ID,
		SourceMessageID: int64(m.ID),
		MediaGroupID:    m.AlbumID,
		Caption:         m.Caption,
		Text:            m.Text,
		ReceivedAt:      m.Time(),
	}

	switch {
	case m.Video != nil:
		frag.ContentType = models.ContentTypeVideo
		frag.TelegramFileID = m.Video.FileID
	case m.Document != nil && strings.HasPrefix(m.Document.MIME, "video/"):
		frag.ContentType = models.ContentTypeVideo
		frag.TelegramFileID = m.Document.FileID
	case m.Photo != nil:
		frag.ContentType = models.ContentTypePhoto
		frag.TelegramFileID = m.Photo.FileID
	default:
		return nil
	}

	return frag
}
