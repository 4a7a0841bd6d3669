// Package server provides the HTTP handlers for the chat API
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"companion-backend/chat"
)

// Message length bounds for the send endpoint, in characters.
const (
	minMessageLen = 1
	maxMessageLen = 2000
)

type sendRequest struct {
	Message string `json:"message"`
	Stream  bool   `json:"stream"`
}

type sendResponse struct {
	ConversationID  int64   `json:"conversation_id"`
	Message         string  `json:"message"`
	ProviderUsed    string  `json:"provider_used"`
	DurationSeconds float64 `json:"duration_seconds"`
	StorageWarning  string  `json:"storage_warning,omitempty"`
}

type switchCharacterRequest struct {
	CharacterID int64 `json:"character_id"`
}

type switchProviderRequest struct {
	Provider string `json:"provider"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// handleSend processes POST /chat/send. With stream=true the response is an
// SSE stream; otherwise events are aggregated into a single JSON reply.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, chat.CodeInvalidMessage, "Invalid request body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if n := utf8.RuneCountInString(message); n < minMessageLen || n > maxMessageLen {
		writeError(w, http.StatusBadRequest, chat.CodeInvalidMessage,
			"Message must be between 1 and 2000 characters")
		return
	}

	events := s.orchestrator.ProcessMessage(r.Context(), user, message, req.Stream)

	if req.Stream {
		writeSSE(w, r, events)
		return
	}

	s.aggregateSend(w, events)
}

// aggregateSend drains the event stream into one JSON response
func (s *Server) aggregateSend(w http.ResponseWriter, events <-chan chat.Event) {
	var resp sendResponse
	var content strings.Builder

	for event := range events {
		switch event.Type {
		case chat.EventContent:
			content.WriteString(event.Content)
		case chat.EventComplete:
			resp.ConversationID = event.ConversationID
			resp.ProviderUsed = event.ProviderUsed
			resp.DurationSeconds = event.DurationSeconds
			resp.StorageWarning = event.StorageWarning
		case chat.EventError:
			writeError(w, statusForCode(event.Code), event.Code, event.Error)
			return
		}
	}

	resp.Message = content.String()
	writeJSON(w, http.StatusOK, resp)
}

// handleHistory processes GET /chat/history with limit and offset parameters
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}

	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, chat.CodeInvalidPagination, "Invalid limit parameter")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, chat.CodeInvalidPagination, "Invalid offset parameter")
		return
	}

	page, err := s.orchestrator.History(r.Context(), user, limit, offset)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleSwitchCharacter processes POST /chat/switch-character
func (s *Server) handleSwitchCharacter(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}

	var req switchCharacterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CharacterID <= 0 {
		writeError(w, http.StatusBadRequest, chat.CodeCharacterNotFound, "Invalid character id")
		return
	}

	persona, err := s.orchestrator.SwitchCharacter(r.Context(), user, req.CharacterID)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, persona)
}

// handleCharacters processes GET /characters
func (s *Server) handleCharacters(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity")
		return
	}

	characters, err := s.orchestrator.Characters(r.Context(), user)
	if err != nil {
		log.Printf("[HTTP] List characters failed: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list characters")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"characters": characters})
}

// handleProviderStatus processes GET /chat/provider
func (s *Server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.ServiceStatus(r.Context()))
}

// handleSwitchProvider processes POST /admin/llm/switch. The provider name
// comes from the query string or the JSON body.
func (s *Server) handleSwitchProvider(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("provider")
	if name == "" {
		var req switchProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			name = req.Provider
		}
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_PROVIDER", "Provider name required")
		return
	}

	if !s.orchestrator.SwitchProvider(name) {
		writeError(w, http.StatusNotFound, "PROVIDER_NOT_FOUND", "Unknown provider")
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.ServiceStatus(r.Context()))
}

// handleHealthz processes GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// writeRequestError maps a chat.RequestError to its HTTP status; anything
// else is an internal error.
func writeRequestError(w http.ResponseWriter, err error) {
	var reqErr *chat.RequestError
	if errors.As(err, &reqErr) {
		writeError(w, statusForCode(reqErr.Code), reqErr.Code, reqErr.Message)
		return
	}
	log.Printf("[HTTP] Internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

func statusForCode(code string) int {
	switch code {
	case chat.CodeCharacterNotFound:
		return http.StatusNotFound
	case chat.CodePremiumRequired:
		return http.StatusForbidden
	case chat.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case chat.CodeGenerationFailed:
		return http.StatusBadGateway
	case chat.CodeConversationError, chat.CodeProcessingError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
