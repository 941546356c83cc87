package auth

import (
	"context"
	"errors"
	"net/http"

	"studylock-backend/internal/httpx"
	"studylock-backend/internal/logging"
)

// LogoutHandler is a no-op: tokens are stateless and the client drops its copy.
func LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func DeleteAccountHandler(users Users, tx Transactor, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		err := tx.WithinTransaction(r.Context(), func(ctx context.Context) error {
			return users.Delete(ctx, uid)
		})
		if errors.Is(err, ErrNoUser) {
			httpx.Error(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			log.Error("delete account failed", "user", uid, "error", err)
			httpx.Error(w, http.StatusInternalServerError, "delete account failed")
			return
		}

		log.Info("account deleted", "user", uid)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}
