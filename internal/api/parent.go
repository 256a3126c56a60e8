package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5"

	"github.com/book-expert/voice-assistant/internal/gate"
)

type loginRequest struct {
	Password string `json:"password"`
}

type timeLimitBody struct {
	DailyMinutes int `json:"daily_minutes"`
}

type wordsBody struct {
	Words []string `json:"words"`
}

type heartbeatRequest struct {
	Seconds float64 `json:"seconds"`
}

type parentHandler struct {
	gate     *gate.Gate
	sessions *gate.Sessions
	log      *logger.Logger
}

// Routes registers the usage and parent-mode endpoints.
func (h *parentHandler) Routes(r chi.Router) {
	if h.gate == nil || h.sessions == nil {
		return
	}

	r.Get("/usage", h.Usage)
	r.Post("/usage/heartbeat", h.Heartbeat)

	r.Route("/parent", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(ParentAuth(h.sessions))
			r.Get("/time-limit", h.GetTimeLimit)
			r.Put("/time-limit", h.PutTimeLimit)
			r.Get("/sensitive-words", h.GetWords)
			r.Put("/sensitive-words", h.PutWords)
			r.Get("/audit-log", h.AuditLog)
		})
	})
}

// Usage handles GET /api/usage.
func (h *parentHandler) Usage(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.gate.Usage())
}

// Heartbeat handles POST /api/usage/heartbeat.
func (h *parentHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest

	decodeErr := decodeJSON(w, r, &req)
	if decodeErr != nil {
		WriteError(w, http.StatusBadRequest, decodeErr.Error())

		return
	}

	usage, err := h.gate.Heartbeat(time.Duration(req.Seconds * float64(time.Second)))
	if err != nil {
		h.log.Error("Failed to record usage: %v", err)
		WriteError(w, http.StatusInternalServerError, "failed to record usage")

		return
	}

	WriteJSON(w, http.StatusOK, usage)
}

// Login handles POST /api/parent/login.
func (h *parentHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest

	decodeErr := decodeJSON(w, r, &req)
	if decodeErr != nil {
		WriteError(w, http.StatusBadRequest, decodeErr.Error())

		return
	}

	token, expires, err := h.sessions.Login(req.Password)
	if err != nil {
		if errors.Is(err, gate.ErrParentModeDisabled) {
			WriteError(w, http.StatusForbidden, err.Error())

			return
		}

		h.gate.Record(gate.EventParentLoginFail, "")
		WriteError(w, http.StatusUnauthorized, err.Error())

		return
	}

	h.gate.Record(gate.EventParentLogin, "")

	http.SetCookie(w, &http.Cookie{
		Name:     gate.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"token":      token,
		"expires_at": expires.Format(time.RFC3339),
	})
}

// Logout handles POST /api/parent/logout.
func (h *parentHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     gate.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetTimeLimit handles GET /api/parent/time-limit.
func (h *parentHandler) GetTimeLimit(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, timeLimitBody{DailyMinutes: h.gate.Limits.DailyMinutes()})
}

// PutTimeLimit handles PUT /api/parent/time-limit.
func (h *parentHandler) PutTimeLimit(w http.ResponseWriter, r *http.Request) {
	var body timeLimitBody

	decodeErr := decodeJSON(w, r, &body)
	if decodeErr != nil {
		WriteError(w, http.StatusBadRequest, decodeErr.Error())

		return
	}

	err := h.gate.Limits.SetDailyMinutes(body.DailyMinutes)
	if errors.Is(err, gate.ErrNegativeLimit) {
		WriteError(w, http.StatusBadRequest, err.Error())

		return
	}

	if err != nil {
		h.log.Error("Failed to save time limit: %v", err)
		WriteError(w, http.StatusInternalServerError, "failed to save time limit")

		return
	}

	h.gate.Record(gate.EventTimeLimitChanged, strconv.Itoa(body.DailyMinutes))
	WriteJSON(w, http.StatusOK, body)
}

// GetWords handles GET /api/parent/sensitive-words.
func (h *parentHandler) GetWords(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, wordsBody{Words: h.gate.Words.Words()})
}

// PutWords handles PUT /api/parent/sensitive-words.
func (h *parentHandler) PutWords(w http.ResponseWriter, r *http.Request) {
	var body wordsBody

	decodeErr := decodeJSON(w, r, &body)
	if decodeErr != nil {
		WriteError(w, http.StatusBadRequest, decodeErr.Error())

		return
	}

	err := h.gate.Words.SetWords(body.Words)
	if err != nil {
		h.log.Error("Failed to save sensitive words: %v", err)
		WriteError(w, http.StatusInternalServerError, "failed to save sensitive words")

		return
	}

	words := h.gate.Words.Words()
	h.gate.Record(gate.EventWordsChanged, strconv.Itoa(len(words))+" words")
	WriteJSON(w, http.StatusOK, wordsBody{Words: words})
}

// AuditLog handles GET /api/parent/audit-log?limit=N.
func (h *parentHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")

			return
		}

		limit = parsed
	}

	WriteJSON(w, http.StatusOK, map[string]any{"entries": h.gate.Audit.Entries(limit)})
}
