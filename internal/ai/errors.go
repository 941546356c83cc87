package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means the gateway credential is missing.
	ErrConfiguration = errors.New("AI gateway API key is not configured")
	// ErrRateLimited is returned for gateway 429 responses. Retryable.
	ErrRateLimited = errors.New("rate limits exceeded, please try again later")
	// ErrServiceUnavailable is returned for gateway 402 (quota/payment) responses.
	ErrServiceUnavailable = errors.New("AI verification temporarily unavailable, please try again")
)

// UpstreamError covers every other non-2xx gateway response.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Status < 300 {
		return "AI gateway error: " + e.Body
	}
	return fmt.Sprintf("AI gateway error: %d", e.Status)
}
