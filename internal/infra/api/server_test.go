//go:build !integration

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-relay/internal/config"
	"telegram-relay/internal/infra/adapters/telegram"
	"telegram-relay/internal/infra/api"
	"telegram-relay/internal/usecase"
)

//
// -------------------- test helpers --------------------
//

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// stubProvider mimics the Bot API sendMessage endpoint and counts calls.
type stubProvider struct {
	*httptest.Server
	calls atomic.Int32
}

func newStubProvider(t *testing.T, h http.HandlerFunc) *stubProvider {
	t.Helper()
	p := &stubProvider{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(p.Close)
	return p
}

func okProvider(t *testing.T) *stubProvider {
	var next atomic.Int32
	return newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		id := 41 + next.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":` + itoa(int(id)) + `}}`))
	})
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{MaxBodyBytes: 1 << 20},
		CORS: config.CORSConfig{
			AllowOrigin:  "*",
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
			MaxAge:       86400,
		},
		Telegram: config.TelegramConfig{Timeout: 2 * time.Second},
	}
}

func newRouter(cfg *config.Config, providerURL string) http.Handler {
	sender := telegram.NewBotAPISender(cfg.Telegram, newLogger(), false).WithBaseURL(providerURL)
	uc := usecase.NewRelayUseCase(sender, newLogger())
	return api.NewServer(uc, cfg, newLogger()).Routes()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not json: %v (%q)", err, rec.Body.String())
	}
	return out
}

const validBody = `{"botToken":"123:abc","chatId":-100200,"message":"<b>order</b>","rawData":{"id":"A-1"}}`

//
// -------------------- tests --------------------
//

func TestPreflight(t *testing.T) {
	p := okProvider(t)
	r := newRouter(testConfig(), p.URL)

	for _, body := range []string{"", validBody, "garbage"} {
		rec := do(r, http.MethodOptions, "/api/send-telegram", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Fatalf("expected empty body, got %q", rec.Body.String())
		}
		h := rec.Header()
		if h.Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("missing allow-origin")
		}
		if h.Get("Access-Control-Allow-Methods") != "GET, POST, OPTIONS" {
			t.Errorf("unexpected allow-methods %q", h.Get("Access-Control-Allow-Methods"))
		}
		if h.Get("Access-Control-Allow-Headers") != "Content-Type, Authorization, X-Requested-With" {
			t.Errorf("unexpected allow-headers %q", h.Get("Access-Control-Allow-Headers"))
		}
		if h.Get("Access-Control-Max-Age") != "86400" {
			t.Errorf("unexpected max-age %q", h.Get("Access-Control-Max-Age"))
		}
	}
	if p.calls.Load() != 0 {
		t.Fatalf("pre-flight must not reach the provider")
	}
}

func TestNarrowCORSVariant(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowMethods = []string{"POST", "OPTIONS"}
	cfg.CORS.AllowHeaders = []string{"Content-Type"}
	cfg.CORS.MaxAge = -1
	cfg.Server.DisableHealth = true
	r := newRouter(cfg, okProvider(t).URL)

	rec := do(r, http.MethodOptions, "/", "")
	if rec.Header().Get("Access-Control-Allow-Methods") != "POST, OPTIONS" {
		t.Errorf("unexpected allow-methods %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
	if rec.Header().Get("Access-Control-Max-Age") != "" {
		t.Errorf("max-age should be omitted")
	}

	rec = do(r, http.MethodGet, "/", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET without health branch: expected 405, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	r := newRouter(testConfig(), okProvider(t).URL)

	rec := do(r, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := decode(t, rec)
	if out["status"] != "API is working" {
		t.Errorf("unexpected status %v", out["status"])
	}
	ts, _ := out["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp not RFC3339: %q", ts)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("cors headers missing on GET")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	p := okProvider(t)
	r := newRouter(testConfig(), p.URL)

	for _, m := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead, "PROPFIND"} {
		t.Run(m, func(t *testing.T) {
			rec := do(r, m, "/any/path", validBody)
			if rec.Code != http.StatusMethodNotAllowed {
				t.Fatalf("expected 405, got %d", rec.Code)
			}
			if m == http.MethodHead {
				return
			}
			if out := decode(t, rec); out["error"] != "Method not allowed" {
				t.Errorf("unexpected body %v", out)
			}
		})
	}
	if p.calls.Load() != 0 {
		t.Fatalf("provider called %d times", p.calls.Load())
	}
}

func TestMissingParameters(t *testing.T) {
	p := okProvider(t)
	r := newRouter(testConfig(), p.URL)

	bodies := map[string]string{
		"empty object":  `{}`,
		"no token":      `{"chatId":1,"message":"m"}`,
		"empty token":   `{"botToken":"","chatId":1,"message":"m"}`,
		"no chat":       `{"botToken":"t","message":"m"}`,
		"null chat":     `{"botToken":"t","chatId":null,"message":"m"}`,
		"zero chat":     `{"botToken":"t","chatId":0,"message":"m"}`,
		"no message":    `{"botToken":"t","chatId":1}`,
		"empty message": `{"botToken":"t","chatId":1,"message":""}`,
		"not json":      `botToken=t`,
		"wrong type":    `{"botToken":5,"chatId":1,"message":"m"}`,
		"no body":       ``,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := do(r, http.MethodPost, "/", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			out := decode(t, rec)
			if out["error"] != "Missing required parameters" {
				t.Errorf("unexpected error %v", out["error"])
			}
			req, _ := out["required"].([]any)
			if len(req) != 3 || req[0] != "botToken" || req[1] != "chatId" || req[2] != "message" {
				t.Errorf("unexpected required list %v", out["required"])
			}
		})
	}
	if p.calls.Load() != 0 {
		t.Fatalf("provider must never be invoked, got %d calls", p.calls.Load())
	}
}

func TestRelaySuccess(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	p := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":{"message_id":42}}`))
	})
	r := newRouter(testConfig(), p.URL)

	rec := do(r, http.MethodPost, "/", validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	if out["success"] != true {
		t.Errorf("expected success:true, got %v", out["success"])
	}
	if out["messageId"] != float64(42) {
		t.Errorf("expected messageId 42, got %v", out["messageId"])
	}
	if out["chatId"] != float64(-100200) {
		t.Errorf("chatId not echoed: %v", out["chatId"])
	}
	raw, _ := out["rawData"].(map[string]any)
	if raw["id"] != "A-1" {
		t.Errorf("rawData not echoed: %v", out["rawData"])
	}
	if _, ok := out["timestamp"].(string); !ok {
		t.Errorf("timestamp missing")
	}

	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("unexpected provider path %q", gotPath)
	}
	if gotBody["chat_id"] != float64(-100200) || gotBody["text"] != "<b>order</b>" || gotBody["parse_mode"] != "HTML" {
		t.Errorf("unexpected provider body %v", gotBody)
	}
	if p.calls.Load() != 1 {
		t.Errorf("expected exactly one provider call, got %d", p.calls.Load())
	}
}

func TestRelaySuccess_StringChatIDWithoutRawData(t *testing.T) {
	p := okProvider(t)
	r := newRouter(testConfig(), p.URL)

	rec := do(r, http.MethodPost, "/", `{"botToken":"t","chatId":"@channel","message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := decode(t, rec)
	if out["chatId"] != "@channel" {
		t.Errorf("chatId not echoed: %v", out["chatId"])
	}
	if _, ok := out["rawData"]; ok {
		t.Errorf("rawData should be omitted when absent")
	}
}

func TestRelayUpstreamError(t *testing.T) {
	p := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"description":"bad request"}`))
	})
	r := newRouter(testConfig(), p.URL)

	rec := do(r, http.MethodPost, "/", validBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	out := decode(t, rec)
	if out["success"] != false {
		t.Errorf("expected success:false")
	}
	if out["error"] != "Telegram API error" {
		t.Errorf("unexpected error %v", out["error"])
	}
	details, _ := out["details"].(map[string]any)
	if details["description"] != "bad request" {
		t.Errorf("details not passed through: %v", out["details"])
	}
}

func TestRelayUpstreamError_AnyJSONBody(t *testing.T) {
	p := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`["oops"]`))
	})
	r := newRouter(testConfig(), p.URL)

	rec := do(r, http.MethodPost, "/", validBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	if out["error"] != "Telegram API error" {
		t.Errorf("unexpected error %v", out["error"])
	}
	details, _ := out["details"].([]any)
	if len(details) != 1 || details[0] != "oops" {
		t.Errorf("details not passed through: %v", out["details"])
	}
}

func TestRelayCompletesAfterCallerLeaves(t *testing.T) {
	p := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":9}}`))
	})
	r := newRouter(testConfig(), p.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(validBody)).WithContext(ctx)
	time.AfterFunc(50*time.Millisecond, cancel)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if out := decode(t, rec); out["messageId"] != float64(9) {
		t.Errorf("unexpected body %v", out)
	}
}

func TestRelayNetworkError(t *testing.T) {
	r := newRouter(testConfig(), "http://127.0.0.1:1")

	rec := do(r, http.MethodPost, "/", validBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	out := decode(t, rec)
	if out["success"] != false || out["error"] != "Internal server error" {
		t.Errorf("unexpected body %v", out)
	}
	if d, _ := out["details"].(string); d == "" || strings.Contains(d, "123:abc") {
		t.Errorf("details should carry a token-free message, got %q", d)
	}
}

func TestRelayMalformedProviderBody(t *testing.T) {
	p := newStubProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`not json`))
	})
	r := newRouter(testConfig(), p.URL)

	rec := do(r, http.MethodPost, "/", validBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if out := decode(t, rec); out["success"] != false {
		t.Errorf("expected success:false")
	}
}

func TestRelayIsNotIdempotent(t *testing.T) {
	p := okProvider(t)
	r := newRouter(testConfig(), p.URL)

	first := decode(t, do(r, http.MethodPost, "/", validBody))
	second := decode(t, do(r, http.MethodPost, "/", validBody))
	if p.calls.Load() != 2 {
		t.Fatalf("expected two provider calls, got %d", p.calls.Load())
	}
	if first["messageId"] == second["messageId"] {
		t.Fatalf("expected distinct message ids, got %v twice", first["messageId"])
	}
}

func TestFieldNamesAreCaseSensitive(t *testing.T) {
	p := okProvider(t)
	r := newRouter(testConfig(), p.URL)

	rec := do(r, http.MethodPost, "/", `{"BOTTOKEN":"123:abc","CHATID":1,"MESSAGE":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if p.calls.Load() != 0 {
		t.Fatalf("provider called %d times", p.calls.Load())
	}
}

func TestRequestIDHeader(t *testing.T) {
	r := newRouter(testConfig(), okProvider(t).URL)
	rec := do(r, http.MethodGet, "/", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}
}
