package analytics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/events/app-opened", nil)
	r.Header.Set("X-Platform", "iOS")
	r.Header.Set("X-App-Version", " 1.4.0 ")
	r.Header.Set("X-Device-Locale", "en-US")
	r.Header.Set("X-Session-Id", "s-1")

	env := FromRequest(r)
	assert.Equal(t, "ios", env.Platform)
	assert.Equal(t, "1.4.0", env.AppVersion)
	assert.Equal(t, "en-US", env.DeviceLocale)
	assert.Equal(t, "s-1", env.SessionID)

	r.Header.Set("X-Platform", "toaster")
	assert.Equal(t, "unknown", FromRequest(r).Platform)
}

func TestSourceEventKeyFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Empty(t, SourceEventKeyFromRequest(r))

	r.Header.Set("X-Source-Event-Key", "fallback")
	assert.Equal(t, "fallback", SourceEventKeyFromRequest(r))

	r.Header.Set("Idempotency-Key", "primary")
	assert.Equal(t, "primary", SourceEventKeyFromRequest(r))
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	id := uuid.New()
	got, ok := UserIDFromContext(WithUserID(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.Log(context.Background(), Envelope{UserID: uuid.New()}, EventAppOpened, nil, "")
	})
}

func TestHandlersRequireUser(t *testing.T) {
	for _, h := range []http.HandlerFunc{AppOpenedHandler(nil), LockShownHandler(nil)} {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}
