package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Names of the fields a relay request cannot go without, in the order they are reported.
const (
	FieldBotToken = "botToken"
	FieldChatID   = "chatId"
	FieldMessage  = "message"

	fieldRawData = "rawData"
)

// RequiredFields lists the inbound fields reported back on a validation reject.
func RequiredFields() []string {
	return []string{FieldBotToken, FieldChatID, FieldMessage}
}

// ChatID is the destination chat as the caller sent it: a number, a string
// such as "@channel", or anything else. It is forwarded to the provider as-is.
type ChatID json.RawMessage

func (c ChatID) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return json.RawMessage(c).MarshalJSON()
}

func (c *ChatID) UnmarshalJSON(b []byte) error {
	*c = append((*c)[:0], b...)
	return nil
}

// IsZero reports whether the value would count as absent: missing, null,
// false, the empty string or the number zero.
func (c ChatID) IsZero() bool {
	v := bytes.TrimSpace(c)
	if len(v) == 0 {
		return true
	}
	switch string(v) {
	case "null", "false", `""`:
		return true
	}
	if v[0] == '"' {
		return false
	}
	if f, err := strconv.ParseFloat(string(v), 64); err == nil {
		return f == 0
	}
	return false
}

// String renders the id for logs; quoted ids lose their quotes.
func (c ChatID) String() string {
	var s string
	if err := json.Unmarshal(c, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(c))
}

// SendRequest is the inbound relay payload.
type SendRequest struct {
	BotToken string          `json:"botToken"`
	ChatID   ChatID          `json:"chatId"`
	Message  string          `json:"message"`
	RawData  json.RawMessage `json:"rawData,omitempty"`
}

// UnmarshalJSON matches field names exactly; a "BOTTOKEN" key does not fill BotToken.
func (r *SendRequest) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*r = SendRequest{}
	if v, ok := fields[FieldBotToken]; ok {
		if err := json.Unmarshal(v, &r.BotToken); err != nil {
			return fmt.Errorf("%s: %w", FieldBotToken, err)
		}
	}
	if v, ok := fields[FieldChatID]; ok {
		r.ChatID = ChatID(v)
	}
	if v, ok := fields[FieldMessage]; ok {
		if err := json.Unmarshal(v, &r.Message); err != nil {
			return fmt.Errorf("%s: %w", FieldMessage, err)
		}
	}
	if v, ok := fields[fieldRawData]; ok {
		r.RawData = v
	}
	return nil
}

// Missing returns the names of required fields that are absent or empty.
func (r *SendRequest) Missing() []string {
	var out []string
	if r.BotToken == "" {
		out = append(out, FieldBotToken)
	}
	if r.ChatID.IsZero() {
		out = append(out, FieldChatID)
	}
	if r.Message == "" {
		out = append(out, FieldMessage)
	}
	return out
}

// SendResult is returned to the caller once the provider accepted the message.
type SendResult struct {
	Success   bool            `json:"success"`
	MessageID int             `json:"messageId"`
	Timestamp string          `json:"timestamp"`
	ChatID    ChatID          `json:"chatId"`
	RawData   json.RawMessage `json:"rawData,omitempty"`
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC with millisecond precision, e.g. 2024-05-01T10:00:00.000Z.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Outcome is the terminal state of a single inbound request.
type Outcome string

const (
	OutcomePreflight          Outcome = "preflight"
	OutcomeHealth             Outcome = "health"
	OutcomeMethodRejected     Outcome = "method_rejected"
	OutcomeValidationRejected Outcome = "validation_rejected"
	OutcomeRelaySucceeded     Outcome = "relay_succeeded"
	OutcomeRelayFailed        Outcome = "relay_failed"
	OutcomeInternalError      Outcome = "internal_error"
)
