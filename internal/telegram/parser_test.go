package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/anterny/tokrelay/internal/models"
)

func TestParseMessageVideo(t *testing.T) {
	m := &tele.Message{
		ID:       42,
		Chat:     &tele.Chat{ID: -100123},
		Unixtime: 1700000000,
		Caption:  "check this out",
		Video:    &tele.Video{File: tele.File{FileID: "vid-1"}},
	}

	frag := ParseMessage(m)
	if frag == nil {
		t.Fatal("expected fragment, got nil")
	}
	if frag.ContentType != models.ContentTypeVideo {
		t.Errorf("content type = %q, want video", frag.ContentType)
	}
	if frag.TelegramFileID != "vid-1" {
		t.Errorf("file id = %q, want vid-1", frag.TelegramFileID)
	}
	if frag.SourceChatID != -100123 || frag.SourceMessageID != 42 {
		t.Errorf("source = (%d, %d), want (-100123, 42)", frag.SourceChatID, frag.SourceMessageID)
	}
	if frag.Caption != "check this out" {
		t.Errorf("caption = %q", frag.Caption)
	}
}

func TestParseMessageVideoDocument(t *testing.T) {
	m := &tele.Message{
		ID:       7,
		Chat:     &tele.Chat{ID: 555},
		Document: &tele.Document{File: tele.File{FileID: "doc-1"}, MIME: "video/mp4"},
	}

	frag := ParseMessage(m)
	if frag == nil {
		t.Fatal("expected fragment, got nil")
	}
	if frag.ContentType != models.ContentTypeVideo {
		t.Errorf("content type = %q, want video", frag.ContentType)
	}
	if frag.TelegramFileID != "doc-1" {
		t.Errorf("file id = %q, want doc-1", frag.TelegramFileID)
	}
}

func TestParseMessageNonVideoDocumentIgnored(t *testing.T) {
	m := &tele.Message{
		ID:       8,
		Chat:     &tele.Chat{ID: 555},
		Document: &tele.Document{File: tele.File{FileID: "doc-2"}, MIME: "application/pdf"},
	}

	if frag := ParseMessage(m); frag != nil {
		t.Fatalf("expected nil for non-video document, got %+v", frag)
	}
}

func TestParseMessageAlbumPhoto(t *testing.T) {
	m := &tele.Message{
		ID:      9,
		Chat:    &tele.Chat{ID: 555},
		AlbumID: "album-77",
		Photo:   &tele.Photo{File: tele.File{FileID: "ph-1"}},
	}

	frag := ParseMessage(m)
	if frag == nil {
		t.Fatal("expected fragment, got nil")
	}
	if frag.ContentType != models.ContentTypePhoto {
		t.Errorf("content type = %q, want photo", frag.ContentType)
	}
	if frag.MediaGroupID != "album-77" {
		t.Errorf("media group id = %q, want album-77", frag.MediaGroupID)
	}
}

func TestParseMessageTextOnlyIgnored(t *testing.T) {
	m := &tele.Message{
		ID:   10,
		Chat: &tele.Chat{ID: 555},
		Text: "just text",
	}

	if frag := ParseMessage(m); frag != nil {
		t.Fatalf("expected nil for text message, got %+v", frag)
	}
}
