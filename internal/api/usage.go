package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mentora-ai/mentora/internal/quota"
	"github.com/mentora-ai/mentora/internal/user"
)

// UserLoader resolves members for the usage endpoint.
type UserLoader interface {
	Load(ctx context.Context, id string) (user.User, error)
}

// UsageReader serves the usage read model.
// *quota.Ledger satisfies it.
type UsageReader interface {
	Status(ctx context.Context, u user.User, now time.Time) (quota.Status, error)
}

type usageHandler struct {
	users  UserLoader
	usage  UsageReader
	logger *slog.Logger
}

type trialPayload struct {
	Active        bool       `json:"active"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
}

type usageResponse struct {
	Tier              string       `json:"tier"`
	MessagesUsed      int64        `json:"messages_used"`
	MessagesLimit     int64        `json:"messages_limit"`
	MessagesRemaining int64        `json:"messages_remaining"`
	TokensUsed        int64        `json:"tokens_used"`
	CostMicros        int64        `json:"cost_micros"`
	PeriodStart       time.Time    `json:"period_start"`
	PeriodEnd         time.Time    `json:"period_end"`
	Trial             trialPayload `json:"trial"`
}

// getUsage handles GET /api/v1/usage.
func (h *usageHandler) getUsage(w http.ResponseWriter, r *http.Request) {
	userID := identityFrom(r)
	if userID == "" {
		WriteError(w, http.StatusUnauthorized, "user_required", "X-User-ID header required", h.logger)
		return
	}

	u, err := h.users.Load(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "user_not_found", "unknown user", h.logger)
			return
		}
		h.logger.Error("loading user for usage status", "error", err)
		WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable", h.logger)
		return
	}

	status, err := h.usage.Status(r.Context(), u, time.Now().UTC())
	if err != nil {
		h.logger.Error("reading usage status", "user_id", u.ID, "error", err)
		WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable", h.logger)
		return
	}

	trial := trialPayload{
		Active:        status.Trial.Active,
		DaysRemaining: status.Trial.DaysRemaining,
	}
	if !status.Trial.EndsAt.IsZero() {
		endsAt := status.Trial.EndsAt
		trial.EndsAt = &endsAt
	}

	WriteJSON(w, http.StatusOK, usageResponse{
		Tier:              string(u.Tier),
		MessagesUsed:      status.Usage.MessagesUsed,
		MessagesLimit:     status.Limit,
		MessagesRemaining: status.Remaining(),
		TokensUsed:        status.Usage.TokensUsed,
		CostMicros:        status.Usage.CostMicros,
		PeriodStart:       status.Usage.PeriodStart,
		PeriodEnd:         status.Usage.PeriodEnd,
		Trial:             trial,
	})
}
