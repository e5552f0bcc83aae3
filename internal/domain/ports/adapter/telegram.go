// File: internal/domain/ports/adapter/telegram.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"telegram-relay/internal/domain/model"
)

// SentMessage is what the provider reports back for an accepted message.
type SentMessage struct {
	MessageID int
	Date      int // unix seconds, provider clock
}

// UpstreamError is returned when the provider answers with a non-2xx status.
// Payload holds the provider body verbatim so it can be relayed to the caller.
type UpstreamError struct {
	StatusCode  int
	ErrorCode   int
	Description string
	Payload     json.RawMessage
}

func (e *UpstreamError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram api error %d", e.StatusCode)
	}
	return fmt.Sprintf("telegram api error %d: %s", e.StatusCode, e.Description)
}

// TelegramSender is the port to the messaging provider. The bot token selects
// the sending account per call; implementations must not cache it.
type TelegramSender interface {
	SendMessage(ctx context.Context, botToken string, chatID model.ChatID, text string) (*SentMessage, error)
}
