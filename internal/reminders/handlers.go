package reminders

import (
	"net/http"

	"studylock-backend/internal/httpx"
	"studylock-backend/internal/logging"
)

// Handler is the network-callable send-deadline-reminder function.
func Handler(r *Reminder, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		n, err := r.Run(req.Context())
		if err != nil {
			log.Error("send deadline reminders failed", "error", err)
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"reminders": n,
		})
	}
}
