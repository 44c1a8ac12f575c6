package telegram

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v4"

	"github.com/anterny/tokrelay/internal/transfer"
)

// FragmentSink receives every accepted media fragment. The aggregator
// implements it.
type FragmentSink interface {
	Ingest(ctx context.Context, frag *transfer.Fragment) error
}

type Config struct {
	Token          string
	PollTimeout    time.Duration
	UseWebhook     bool
	AllowedChatIDs map[int64]bool
}

// Source owns the Telegram bot connection. It feeds media fragments to the
// sink and serves file downloads for the media fetcher.
type Source struct {
	bot     *tele.Bot
	sink    FragmentSink
	allowed map[int64]bool
}

func NewSource(cfg Config, sink FragmentSink) (*Source, error) {
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// The poller is only started in polling mode; webhook mode feeds updates
	// through ProcessUpdate instead.
	b, err := tele.NewBot(tele.Settings{
		Token:       cfg.Token,
		Poller:      &tele.LongPoller{Timeout: timeout},
		Synchronous: cfg.UseWebhook,
	})
	if err != nil {
		return nil, err
	}

	s := &Source{
		bot:     b,
		sink:    sink,
		allowed: cfg.AllowedChatIDs,
	}
	s.registerHandlers()
	return s, nil
}

func (s *Source) registerHandlers() {
	handler := func(c tele.Context) error {
		s.handleMessage(c.Message())
		return nil
	}
	s.bot.Handle(tele.OnVideo, handler)
	s.bot.Handle(tele.OnPhoto, handler)
	s.bot.Handle(tele.OnDocument, handler)
	// Channel posts are routed to their own endpoint, not to the media ones.
	// The parser rejects non-media posts, so one handler covers them all.
	s.bot.Handle(tele.OnChannelPost, handler)
}

func (s *Source) handleMessage(m *tele.Message) {
	frag := ParseMessage(m)
	if frag == nil {
		return
	}
	if len(s.allowed) > 0 && !s.allowed[frag.SourceChatID] {
		log.Debug().Int64("chat_id", frag.SourceChatID).Msg("ignoring message from disallowed chat")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.sink.Ingest(ctx, frag); err != nil {
		log.Error().Err(err).
			Int64("chat_id", frag.SourceChatID).
			Int64("message_id", frag.SourceMessageID).
			Msg("failed to ingest media fragment")
	}
}

// ProcessUpdate feeds a webhook update through the same handlers used for
// polling.
func (s *Source) ProcessUpdate(u tele.Update) {
	s.bot.ProcessUpdate(u)
}

// Download fetches a Telegram file body by its file id. The caller closes the
// reader.
func (s *Source) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file := tele.File{FileID: fileID}
	return s.bot.File(&file)
}

// Start begins long polling. It blocks until Stop is called, so callers run
// it in its own goroutine.
func (s *Source) Start() {
	log.Info().Msg("telegram polling started")
	s.bot.Start()
}

func (s *Source) Stop() {
	s.bot.Stop()
}
