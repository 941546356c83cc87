package lock

import (
	"net/http"
	"time"

	"studylock-backend/internal/auth"
	"studylock-backend/internal/httpx"
	"studylock-backend/internal/logging"
)

// StateHandler serves the lock state for thin clients. No submission
// flags apply server-side: the state is exactly what the tasks imply.
func StateHandler(source Source, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		snapshot, err := source.ListOpen(r.Context(), uid)
		if err != nil {
			log.Error("load lock snapshot failed", "user", uid, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "db error")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, Recompute(snapshot, time.Now(), Flags{}))
	}
}
