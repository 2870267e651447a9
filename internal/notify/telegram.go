package notify

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"cronkeep/internal/eventbus"
	logx "cronkeep/pkg/logx"
)

// maxMessage is Telegram's message length limit.
const maxMessage = 4096

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

type TelegramConfig struct {
	Token       string
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration
}

// TelegramSender posts to a single chat (optionally a forum thread).
type TelegramSender struct {
	bot  *tele.Bot
	chat *tele.Chat
	opt  *tele.SendOptions
}

func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{
		bot:  b,
		chat: &tele.Chat{ID: cfg.ChatID},
		opt:  &tele.SendOptions{ThreadID: cfg.ThreadID, DisableWebPagePreview: true},
	}, nil
}

func (s *TelegramSender) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(s.chat, truncateRunes(text, maxMessage), s.opt)
	return err
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// Forwarder relays selected bus events to a Sender at a bounded rate.
type Forwarder struct {
	bus     eventbus.Bus
	sender  Sender
	log     logx.Logger
	events  map[string]bool
	limiter *rate.Limiter
}

// NewForwarder forwards the given event types (DefaultEvents when empty),
// sending at most ratePerSec messages per second (default 1).
func NewForwarder(bus eventbus.Bus, sender Sender, events []string, ratePerSec int, log logx.Logger) *Forwarder {
	if len(events) == 0 {
		events = DefaultEvents
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	set := make(map[string]bool, len(events))
	for _, e := range events {
		set[strings.TrimSpace(e)] = true
	}
	return &Forwarder{
		bus:     bus,
		sender:  sender,
		log:     log,
		events:  set,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

// Run forwards events until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	ch, unsub := f.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if !f.events[e.Type] {
				continue
			}
			text, ok := Format(e)
			if !ok {
				continue
			}
			if err := f.limiter.Wait(ctx); err != nil {
				return nil
			}
			sctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := f.sender.Send(sctx, text)
			cancel()
			if err != nil {
				f.log.Warn("notification send failed", logx.String("event", e.Type), logx.Err(err))
			}
		}
	}
}
