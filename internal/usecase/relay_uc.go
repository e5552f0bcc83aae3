package usecase

import (
	"context"
	"errors"
	"time"

	"telegram-relay/internal/domain"
	"telegram-relay/internal/domain/model"
	"telegram-relay/internal/domain/ports/adapter"
	"telegram-relay/internal/infra/logging"
	"telegram-relay/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ RelayUseCase = (*relayUC)(nil)

// RelayUseCase forwards one validated message to the provider.
type RelayUseCase interface {
	Send(ctx context.Context, req *model.SendRequest) (*model.SendResult, error)
}

type relayUC struct {
	sender adapter.TelegramSender
	log    *zerolog.Logger
	now    func() time.Time
}

func NewRelayUseCase(sender adapter.TelegramSender, logger *zerolog.Logger) *relayUC {
	return &relayUC{
		sender: sender,
		log:    logger,
		now:    time.Now,
	}
}

// Send validates req and performs exactly one provider call. It returns
// domain.ErrMissingParameters without calling the provider when a required
// field is empty, *adapter.UpstreamError when the provider rejected the
// message, and any other error for transport or decoding failures.
func (u *relayUC) Send(ctx context.Context, req *model.SendRequest) (*model.SendResult, error) {
	defer logging.TraceDuration(u.log, "RelayUC.Send")()

	if req == nil || len(req.Missing()) > 0 {
		return nil, domain.ErrMissingParameters
	}

	// a caller that goes away does not abort a message already handed to the
	// provider; the sender's own timeout is the only bound
	ctx = context.WithoutCancel(ctx)

	start := u.now()
	sent, err := u.sender.SendMessage(ctx, req.BotToken, req.ChatID, req.Message)
	metrics.ObserveUpstream(u.now().Sub(start), err == nil)
	if err != nil {
		var upErr *adapter.UpstreamError
		if errors.As(err, &upErr) {
			metrics.IncUpstreamError(upErr.StatusCode)
		}
		return nil, err
	}
	logging.With(ctx, u.log).Debug().
		Int("message_id", sent.MessageID).
		Int("provider_date", sent.Date).
		Msg("provider accepted message")

	return &model.SendResult{
		Success:   true,
		MessageID: sent.MessageID,
		Timestamp: model.FormatTimestamp(u.now()),
		ChatID:    req.ChatID,
		RawData:   req.RawData,
	}, nil
}
