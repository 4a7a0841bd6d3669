package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"companion-backend/cache"
	"companion-backend/chat"
	"companion-backend/llm"
	"companion-backend/storage"
)

var testSecret = []byte("test-secret")

type stubProvider struct {
	name     string
	response string
}

func (p *stubProvider) Name() string  { return p.name }
func (p *stubProvider) Model() string { return "stub-model" }

func (p *stubProvider) Generate(ctx context.Context, messages []llm.Message, cfg llm.GenerationConfig) (string, error) {
	return p.response, nil
}

func (p *stubProvider) Stream(ctx context.Context, messages []llm.Message, cfg llm.GenerationConfig) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 1)
	ch <- llm.Chunk{Content: p.response}
	close(ch)
	return ch, nil
}

func (p *stubProvider) Probe(ctx context.Context) bool { return true }
func (p *stubProvider) Close() error                   { return nil }

func newTestServer(t *testing.T) (*Server, *storage.Store, *cache.SelectionCache, storage.Character) {
	t.Helper()

	store, err := storage.Open(t.TempDir() + "/server.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	persona, err := store.CreateCharacter(context.Background(), storage.Character{
		Name: "Aanya", PersonalityType: "caring", BasePrompt: "You are Aanya.",
	})
	if err != nil {
		t.Fatal(err)
	}

	registry, err := llm.NewRegistryFromProviders(
		[]llm.Provider{&stubProvider{name: "groq", response: "Hello there!"}}, "groq", "")
	if err != nil {
		t.Fatal(err)
	}

	selection := cache.NewSelectionCache(time.Hour)
	contexts := chat.NewContextStore(store, cache.NewContextCache(time.Hour))
	orchestrator := chat.NewOrchestrator(registry, contexts, store, selection, nil)

	return New(":0", orchestrator, testSecret, 0), store, selection, persona
}

func signToken(t *testing.T, userID string, premium bool) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     userID,
		"premium": premium,
		"lang":    "en",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func doRequest(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuth_MissingToken(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/characters", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_WrongSecret(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, s, http.MethodGet, "/characters", signed, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/characters", signToken(t, "user-1", false), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Characters []storage.Character `json:"characters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Characters) != 1 || payload.Characters[0].Name != "Aanya" {
		t.Errorf("unexpected characters payload: %+v", payload.Characters)
	}
}

func TestSend_MessageLengthValidated(t *testing.T) {
	s, _, selection, persona := newTestServer(t)
	selection.Set("user-1", persona.ID)
	token := signToken(t, "user-1", false)

	for _, message := range []string{"", "   ", strings.Repeat("a", 2001)} {
		body, _ := json.Marshal(map[string]interface{}{"message": message})
		rec := doRequest(t, s, http.MethodPost, "/chat/send", token, string(body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("message %q: expected 400, got %d", message[:min(len(message), 10)], rec.Code)
		}
	}
}

func TestSend_AggregatedResponse(t *testing.T) {
	s, store, selection, persona := newTestServer(t)
	selection.Set("user-1", persona.ID)

	rec := doRequest(t, s, http.MethodPost, "/chat/send", signToken(t, "user-1", false),
		`{"message":"Hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp sendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message != "Hello there!" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if resp.ProviderUsed != "groq" {
		t.Errorf("unexpected provider %q", resp.ProviderUsed)
	}

	conv, err := store.GetOrCreateConversation(context.Background(), "user-1", persona.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ConversationID != conv.ID {
		t.Errorf("conversation id mismatch: %d vs %d", resp.ConversationID, conv.ID)
	}
}

func TestSend_SSEStream(t *testing.T) {
	s, _, selection, persona := newTestServer(t)
	selection.Set("user-1", persona.ID)

	rec := doRequest(t, s, http.MethodPost, "/chat/send", signToken(t, "user-1", false),
		`{"message":"Hello","stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	var types []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			types = append(types, strings.TrimPrefix(line, "event: "))
		} else if line != "" && !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, ":") {
			t.Errorf("unexpected SSE line %q", line)
		}
	}

	if len(types) < 3 {
		t.Fatalf("expected metadata, content and complete events, got %v", types)
	}
	if types[0] != "metadata" {
		t.Errorf("expected first event metadata, got %s", types[0])
	}
	if last := types[len(types)-1]; last != "complete" {
		t.Errorf("expected last event complete, got %s", last)
	}
	for _, typ := range types[:len(types)-1] {
		if typ == "complete" || typ == "error" {
			t.Errorf("terminal event %s before end of stream", typ)
		}
	}
}

func TestSend_NoCharacterSelected(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/chat/send", signToken(t, "user-1", false),
		`{"message":"Hello"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != chat.CodeCharacterNotSelected {
		t.Errorf("expected CHARACTER_NOT_SELECTED, got %s", resp.Code)
	}
}

func TestHistory_PaginationRejected(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	token := signToken(t, "user-1", false)

	for _, query := range []string{"limit=101", "limit=0", "offset=-1", "limit=abc"} {
		rec := doRequest(t, s, http.MethodGet, "/chat/history?"+query, token, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %s: expected 400, got %d", query, rec.Code)
		}
	}
}

func TestSwitchCharacter_NotFound(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/chat/switch-character",
		signToken(t, "user-1", false), `{"character_id":999}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSwitchProvider(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	token := signToken(t, "admin", true)

	rec := doRequest(t, s, http.MethodPost, "/admin/llm/switch", token, `{"provider":"groq"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/admin/llm/switch", token, `{"provider":"nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown provider, got %d", rec.Code)
	}
}

func TestHealthz_NoAuth(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/chat/send", signToken(t, "user-1", false), "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(time.Minute)
	if !limiter.Allow("user-1") {
		t.Fatal("first request should pass")
	}
	if limiter.Allow("user-1") {
		t.Fatal("second immediate request should be limited")
	}
	if !limiter.Allow("user-2") {
		t.Fatal("other users are unaffected")
	}
}
