package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"paddle-arena/internal/game"
	"paddle-arena/internal/identity"
	"paddle-arena/internal/protocol"
	"paddle-arena/internal/session"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps REST request bodies
const maxBodyBytes = 1 << 16

// Handler methods for routerHandlers
// These are used by both the standalone router (for testing) and the full Server.

func (h *routerHandlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Private         bool `json:"private"`
		MaxParticipants int  `json:"maxParticipants"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	who, _ := identity.FromContext(r.Context())
	s, err := h.registry.Create(r.Context(), session.CreateOptions{
		Creator:         who,
		Private:         req.Private,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, s)
}

func (h *routerHandlers) handleCreateAISession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Difficulty string `json:"difficulty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = string(game.DifficultyMedium)
	}

	who, _ := identity.FromContext(r.Context())
	s, err := h.registry.CreateWithSyntheticOpponent(r.Context(), who, req.Difficulty)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, s)
}

func (h *routerHandlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"sessions": h.registry.List(),
	})
}

func (h *routerHandlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	s.RoomCode = ""
	writeJSON(w, s)
}

func (h *routerHandlers) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomCode string `json:"roomCode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	who, _ := identity.FromContext(r.Context())
	s, err := h.registry.Join(r.Context(), chi.URLParam(r, "id"), who, req.RoomCode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, s)
}

func (h *routerHandlers) handleLeaveSession(w http.ResponseWriter, r *http.Request) {
	who, _ := identity.FromContext(r.Context())
	if err := h.registry.Leave(r.Context(), chi.URLParam(r, "id"), who.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.court.WritePNG(w, s); err != nil {
		log.Printf("⚠️ Preview render failed for session %s: %v", s.ID, err)
	}
}

func (h *routerHandlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, protocol.Schema())
}

func (h *routerHandlers) handleGuestIdentity(w http.ResponseWriter, r *http.Request) {
	if h.guests == nil {
		writeError(w, "Guest identities are disabled", http.StatusNotFound)
		return
	}
	var req struct {
		DisplayName string `json:"displayName"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = "Guest"
	}
	if len(name) > 32 {
		writeError(w, "displayName must be at most 32 characters", http.StatusBadRequest)
		return
	}

	who, token, expires, err := h.guests.IssueGuest(name)
	if err != nil {
		log.Printf("❌ Guest token issue failed: %v", err)
		writeError(w, "Could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]interface{}{
		"identity":  who,
		"token":     token,
		"expiresAt": expires.UTC().Format(time.RFC3339),
	})
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":   "ok",
		"sessions": h.registry.Count(),
	}
	if h.hub != nil {
		resp["channels"] = h.hub.Total()
	}
	if h.outbox != nil {
		resp["outbox"] = h.outbox.GetStats()
	}
	writeJSON(w, resp)
}

// Helper functions (package-level for reuse)

// decodeBody reads an optional JSON body into dst. An empty body leaves dst
// untouched. It writes a 400 and returns false on bad input.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps session errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the client-facing text for err. Internal failures are
// not echoed.
func errorMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func writeServiceError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("❌ Request failed: %v", err)
	}
	writeError(w, errorMessage(err), code)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
