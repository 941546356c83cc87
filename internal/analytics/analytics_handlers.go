package analytics

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"studylock-backend/internal/httpx"
)

// app_opened: the client app came to the foreground
func AppOpenedHandler(rec *Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var body struct {
			ColdStart bool   `json:"cold_start"`
			From      string `json:"from"` // push/deeplink/icon/unknown
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		env := FromRequest(r)
		env.UserID = uid

		rec.Log(r.Context(), env, EventAppOpened, map[string]any{
			"cold_start": body.ColdStart,
			"from":       body.From,
		}, SourceEventKeyFromRequest(r))

		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// lock_shown: the lock screen was rendered for an overdue task
func LockShownHandler(rec *Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var body struct {
			TaskID       uuid.UUID `json:"task_id"`
			OverdueCount int       `json:"overdue_count"`
			Source       string    `json:"source"` // initial/poll/realtime/foreground
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		env := FromRequest(r)
		env.UserID = uid

		rec.Log(r.Context(), env, EventLockShown, map[string]any{
			"task_id":       body.TaskID,
			"overdue_count": body.OverdueCount,
			"source":        body.Source,
		}, SourceEventKeyFromRequest(r))

		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}
