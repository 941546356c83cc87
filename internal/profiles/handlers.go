package profiles

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"studylock-backend/internal/analytics"
	"studylock-backend/internal/auth"
	"studylock-backend/internal/httpx"
	"studylock-backend/internal/logging"
)

type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (Profile, error)
	ApplyFocusPenalty(ctx context.Context, userID uuid.UUID, resetStreak bool) (Profile, error)
}

func GetProfileHandler(store Store, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		p, err := store.Get(r.Context(), uid)
		if err != nil {
			log.Error("load profile failed", "user", uid, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "db error")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, p)
	}
}

// FocusBreakHandler records a penalized focus break reported by a client
// whose lock screen was left for too long.
func FocusBreakHandler(store Store, rec *analytics.Recorder, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var body FocusBreakInput
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		resetStreak := body.Breaks >= StreakResetBreaks
		p, err := store.ApplyFocusPenalty(r.Context(), uid, resetStreak)
		if err != nil {
			log.Error("focus penalty failed", "user", uid, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "db error")
			return
		}

		// analytics: focus_break
		{
			env := analytics.FromRequest(r)
			env.UserID = uid
			rec.Log(r.Context(), env, analytics.EventFocusBreak, map[string]any{
				"breaks":       body.Breaks,
				"away_seconds": body.AwaySeconds,
				"streak_reset": resetStreak,
			}, analytics.SourceEventKeyFromRequest(r))
		}

		log.Info("focus penalty applied", "user", uid, "breaks", body.Breaks, "reliability", p.ReliabilityScore)
		httpx.WriteJSON(w, http.StatusOK, p)
	}
}
