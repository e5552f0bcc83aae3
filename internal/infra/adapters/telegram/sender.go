package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-relay/internal/config"
	"telegram-relay/internal/domain"
	"telegram-relay/internal/domain/model"
	"telegram-relay/internal/domain/ports/adapter"
	"telegram-relay/internal/infra/logging"
)

var _ adapter.TelegramSender = (*BotAPISender)(nil)

// maxResponseBytes caps how much of a provider answer is read.
const maxResponseBytes = 1 << 20

type sendMessageRequest struct {
	ChatID    model.ChatID `json:"chat_id"`
	Text      string       `json:"text"`
	ParseMode string       `json:"parse_mode"`
}

// BotAPISender calls the Bot API sendMessage method over plain HTTPS.
// The token is part of the URL path, so it is picked per call.
type BotAPISender struct {
	client  *http.Client
	baseURL string
	log     *zerolog.Logger
	dev     bool
}

func NewBotAPISender(cfg config.TelegramConfig, logger *zerolog.Logger, dev bool) *BotAPISender {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultTelegramURL
	}
	return &BotAPISender{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: baseURL,
		log:     logger,
		dev:     dev,
	}
}

// WithBaseURL sets a custom base URL (for testing).
func (s *BotAPISender) WithBaseURL(baseURL string) *BotAPISender {
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

func (s *BotAPISender) endpoint(botToken string) string {
	return fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, botToken)
}

// SendMessage posts text to chatID with HTML rendering. A non-2xx answer is
// returned as *adapter.UpstreamError carrying the provider body; any other
// failure (transport, undecodable body, missing result) is a plain error.
func (s *BotAPISender) SendMessage(ctx context.Context, botToken string, chatID model.ChatID, text string) (*adapter.SentMessage, error) {
	l := logging.With(ctx, s.log)
	defer logging.TraceDuration(l, "BotAPISender.SendMessage")()

	// text is HTML markup; keep it unescaped on the wire
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgbotapi.ModeHTML,
	}); err != nil {
		return nil, fmt.Errorf("encode sendMessage: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(botToken), &body)
	if err != nil {
		return nil, fmt.Errorf("build telegram request: %w", stripURL(err))
	}
	req.Header.Set("Content-Type", "application/json")

	l.Debug().Str("token", logging.Redact(botToken, s.dev)).Msg("calling telegram sendMessage")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram request: %w", stripURL(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read telegram response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("decode telegram response (status %d): invalid json", resp.StatusCode)
		}
		upErr := &adapter.UpstreamError{
			StatusCode: resp.StatusCode,
			Payload:    json.RawMessage(raw),
		}
		// any JSON value is relayed; the usual envelope only adds log fields
		var apiResp tgbotapi.APIResponse
		if json.Unmarshal(raw, &apiResp) == nil {
			upErr.ErrorCode = apiResp.ErrorCode
			upErr.Description = apiResp.Description
		}
		return nil, upErr
	}

	var apiResp tgbotapi.APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("decode telegram response (status %d): %w", resp.StatusCode, err)
	}
	if len(apiResp.Result) == 0 || string(apiResp.Result) == "null" {
		return nil, domain.ErrEmptyResult
	}
	var msg tgbotapi.Message
	if err := json.Unmarshal(apiResp.Result, &msg); err != nil {
		return nil, fmt.Errorf("decode telegram message: %w", err)
	}
	return &adapter.SentMessage{MessageID: msg.MessageID, Date: msg.Date}, nil
}

// stripURL drops the request URL from transport errors; it embeds the bot token.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
