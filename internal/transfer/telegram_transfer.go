package transfer

import "time"

// Fragment is one inbound Telegram message normalized to the shape the
// aggregation pipeline works with. Fragments sharing a MediaGroupID belong
// to one logical album.
type Fragment struct {
	SourceChatID    int64
	SourceMessageID int64
	MediaGroupID    string
	ContentType     string // video | photo
	TelegramFileID  string
	Caption         string
	Text            string
	ReceivedAt      time.Time
}
