package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/mentora-ai/mentora/internal/admission"
	"github.com/mentora-ai/mentora/internal/gate"
	"github.com/mentora-ai/mentora/internal/user"
)

// maxChatBodyBytes caps chat request bodies.
const maxChatBodyBytes = 64 * 1024

// maxQuestionRunes caps the question length.
const maxQuestionRunes = 4000

// Admitter runs a chat turn through the admission pipeline.
// Defined here by the consumer; *admission.Orchestrator satisfies it.
type Admitter interface {
	Admit(ctx context.Context, req admission.Request) (admission.Result, error)
}

type chatHandler struct {
	admitter Admitter
	logger   *slog.Logger
}

type chatRequest struct {
	Message   string `json:"message"`
	Namespace string `json:"namespace,omitempty"`
}

type chatSource struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type chatResponse struct {
	Answer           string       `json:"answer"`
	Outcome          string       `json:"outcome"`
	Sources          []chatSource `json:"sources"`
	MissingKnowledge bool         `json:"missing_knowledge"`
	TokensUsed       int64        `json:"tokens_used"`
	CostMicros       int64        `json:"cost_micros"`
	MessagesUsed     int64        `json:"messages_used"`
}

// send handles POST /api/v1/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	userID := identityFrom(r)
	if userID == "" {
		WriteError(w, http.StatusUnauthorized, "user_required", "X-User-ID header required", h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		WriteError(w, http.StatusBadRequest, "empty_message", "message must not be empty", h.logger)
		return
	}
	if len([]rune(req.Message)) > maxQuestionRunes {
		WriteError(w, http.StatusBadRequest, "message_too_long", "message exceeds maximum length", h.logger)
		return
	}

	result, err := h.admitter.Admit(r.Context(), admission.Request{
		UserID:    userID,
		Question:  req.Message,
		Namespace: req.Namespace,
	})
	if err != nil {
		h.writeAdmitError(w, err)
		return
	}

	if result.Denial != nil {
		h.writeDenial(w, result.Denial)
		return
	}

	sources := make([]chatSource, len(result.Sources))
	for i, s := range result.Sources {
		sources[i] = chatSource{ID: s.ID, Score: s.Score}
	}

	WriteJSON(w, http.StatusOK, chatResponse{
		Answer:           result.Answer,
		Outcome:          string(result.Outcome),
		Sources:          sources,
		MissingKnowledge: result.Outcome == gate.MissingKnowledge,
		TokensUsed:       result.TokensUsed,
		CostMicros:       result.CostMicros,
		MessagesUsed:     result.Usage.MessagesUsed,
	})
}

// writeDenial maps admission denials to 429 responses with machine-readable
// codes. Rate denials additionally carry Retry-After and X-RateLimit-*.
func (h *chatHandler) writeDenial(w http.ResponseWriter, d *admission.Denial) {
	if d.Code == admission.CodeRateLimited {
		seconds := int(math.Ceil(d.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		if d.Rate != nil {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Rate.MinuteLimit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Rate.MinuteRemaining))
		}
		WriteError(w, http.StatusTooManyRequests, d.Code, "too many requests, slow down", h.logger)
		return
	}

	// Quota and trial denials. Messages stay generic; limits and trial
	// configuration are visible through /api/v1/usage, not error strings.
	WriteError(w, http.StatusTooManyRequests, d.Code, "sending is not available for this account right now", h.logger)
}

func (h *chatHandler) writeAdmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrNotFound):
		WriteError(w, http.StatusNotFound, "user_not_found", "unknown user", h.logger)
	case errors.Is(err, admission.ErrRetrievalUnavailable),
		errors.Is(err, admission.ErrCompletionUnavailable),
		errors.Is(err, admission.ErrStorageUnavailable):
		h.logger.Error("chat turn failed", "error", err)
		WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable", h.logger)
	default:
		h.logger.Error("chat turn failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}

// identityFrom extracts the authenticated member ID. Token verification
// happens upstream at the gateway; this service trusts X-User-ID.
func identityFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}
