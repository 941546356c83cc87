package verification

import (
	"errors"
	"net/http"

	"studylock-backend/internal/ai"
	"studylock-backend/internal/httpx"
	"studylock-backend/internal/logging"
)

type response struct {
	Success bool `json:"success"`
	Result
}

// VerifyHandler is the network-callable verify-proof function.
func VerifyHandler(v *Verifier, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   err.Error(),
			})
			return
		}

		result, err := v.Verify(r.Context(), req)
		if err != nil {
			status, body := errorResponse(err)
			log.Error("verification failed", "task", req.TaskTitle, "status", status, "error", err)
			httpx.WriteJSON(w, status, body)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, response{Success: true, Result: result})
	}
}

// errorResponse maps verification failures onto the function's wire contract.
func errorResponse(err error) (int, map[string]any) {
	var upstream *ai.UpstreamError
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		return http.StatusTooManyRequests, map[string]any{
			"error": "Rate limits exceeded, please try again later.",
		}
	case errors.Is(err, ai.ErrServiceUnavailable):
		return http.StatusPaymentRequired, map[string]any{
			"error": "AI verification temporarily unavailable. Please try again.",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()}
	case errors.As(err, &upstream):
		return http.StatusInternalServerError, map[string]any{"success": false, "error": upstream.Error()}
	}
	return http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()}
}

// StatusFor exposes the same mapping to callers that embed verification
// in a larger flow (proof submission).
func StatusFor(err error) (int, string) {
	status, body := errorResponse(err)
	msg, _ := body["error"].(string)
	return status, msg
}
