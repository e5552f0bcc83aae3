package telegram

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"telegram-relay/internal/domain/model"
	"telegram-relay/internal/domain/ports/adapter"
	"telegram-relay/internal/infra/logging"
)

var _ adapter.TelegramSender = (*NoopSender)(nil)

// NoopSender implements adapter.TelegramSender for local/dev testing.
// It logs messages instead of sending real Telegram messages.
type NoopSender struct {
	log    *zerolog.Logger
	delay  time.Duration
	nextID atomic.Int64
}

func NewNoopSender(logger *zerolog.Logger) *NoopSender {
	return &NoopSender{log: logger, delay: 100 * time.Millisecond}
}

// SendMessage logs the message and simulates small delay.
func (s *NoopSender) SendMessage(ctx context.Context, botToken string, chatID model.ChatID, text string) (*adapter.SentMessage, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	id := s.nextID.Add(1)
	logging.With(ctx, s.log).Info().
		Str("text", text).
		Int64("message_id", id).
		Msg("[noop-telegram] message not sent")
	return &adapter.SentMessage{MessageID: int(id), Date: int(time.Now().Unix())}, nil
}
