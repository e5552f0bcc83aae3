package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"telegram-relay/internal/config"
	"telegram-relay/internal/domain"
	"telegram-relay/internal/domain/model"
	"telegram-relay/internal/domain/ports/adapter"
	"telegram-relay/internal/infra/logging"
	"telegram-relay/internal/infra/metrics"
	"telegram-relay/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	errMethodNotAllowed = "Method not allowed"
	errMissingParams    = "Missing required parameters"
	errTelegramAPI      = "Telegram API error"
	errInternal         = "Internal server error"
	healthStatus        = "API is working"
)

type errorResponse struct {
	Error    string   `json:"error"`
	Required []string `json:"required,omitempty"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Server exposes the relay endpoint. It answers on every path.
type Server struct {
	relayUC      usecase.RelayUseCase
	cors         config.CORSConfig
	health       bool
	maxBodyBytes int64
	log          *zerolog.Logger
	now          func() time.Time
}

func NewServer(relayUC usecase.RelayUseCase, cfg *config.Config, logger *zerolog.Logger) *Server {
	maxBody := cfg.Server.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = config.DefaultMaxBodyBytes
	}
	return &Server{
		relayUC:      relayUC,
		cors:         cfg.CORS,
		health:       !cfg.Server.DisableHealth,
		maxBodyBytes: maxBody,
		log:          logger,
		now:          time.Now,
	}
}

// Routes builds the router. Unknown methods are routed to the relay handler
// too, so every rejection carries the same JSON body.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		TraceID(),
		RequestLog(s.log),
		Recover(s.log),
		CORS(s.cors),
	)
	r.MethodNotAllowed(s.handleRelay)
	r.HandleFunc("/", s.handleRelay)
	r.HandleFunc("/*", s.handleRelay)
	return r
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodOptions:
		s.finish(r, model.OutcomePreflight)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && s.health:
		s.finish(r, model.OutcomeHealth)
		writeJSON(w, http.StatusOK, healthResponse{
			Status:    healthStatus,
			Timestamp: model.FormatTimestamp(s.now()),
		})
	case r.Method == http.MethodPost:
		s.relay(w, r)
	default:
		s.finish(r, model.OutcomeMethodRejected)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: errMethodNotAllowed})
	}
}

func (s *Server) relay(w http.ResponseWriter, r *http.Request) {
	var req model.SendRequest
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("undecodable relay body")
		s.rejectMissing(w, r)
		return
	}

	ctx := logging.WithChatID(r.Context(), req.ChatID.String())
	r = r.WithContext(ctx)
	l := logging.With(ctx, s.log)

	res, err := s.relayUC.Send(ctx, &req)
	var upErr *adapter.UpstreamError
	switch {
	case err == nil:
		l.Info().Int("message_id", res.MessageID).Msg("telegram message sent")
		s.finish(r, model.OutcomeRelaySucceeded)
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, domain.ErrMissingParameters):
		s.rejectMissing(w, r)
	case errors.As(err, &upErr):
		l.Error().
			Int("status", upErr.StatusCode).
			Int("error_code", upErr.ErrorCode).
			Str("description", upErr.Description).
			Msg("telegram api error")
		s.finish(r, model.OutcomeRelayFailed)
		writeJSON(w, http.StatusBadRequest, failureResponse{
			Success: false,
			Error:   errTelegramAPI,
			Details: upErr.Payload,
		})
	default:
		l.Error().Err(err).Msg("relay failed")
		s.finish(r, model.OutcomeInternalError)
		writeJSON(w, http.StatusInternalServerError, failureResponse{
			Success: false,
			Error:   errInternal,
			Details: err.Error(),
		})
	}
}

func (s *Server) rejectMissing(w http.ResponseWriter, r *http.Request) {
	s.finish(r, model.OutcomeValidationRejected)
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:    errMissingParams,
		Required: model.RequiredFields(),
	})
}

func (s *Server) finish(r *http.Request, outcome model.Outcome) {
	metrics.IncOutcome(string(outcome))
	logging.With(r.Context(), s.log).Debug().Str("outcome", string(outcome)).Msg("request finished")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
