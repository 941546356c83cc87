package notify

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func browserSubscription(t *testing.T, endpoint string) Subscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)

	return Subscription{
		Endpoint: endpoint,
		Keys: Keys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(secret),
		},
	}
}

func newTestPush(t *testing.T) *WebPush {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	wp, err := NewWebPush(pub, priv, "mailto:ops@example.com")
	require.NoError(t, err)
	return wp
}

func TestSend_StatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
		failed  bool
	}{
		{http.StatusCreated, nil, false},
		{http.StatusGone, ErrSubscriptionGone, true},
		{http.StatusNotFound, ErrSubscriptionGone, true},
		{http.StatusTooManyRequests, nil, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := newTestPush(t).Send(context.Background(), browserSubscription(t, srv.URL+"/push/abc"), Message{
				Title: "⏰ Deadline Approaching!",
				Body:  "\"Essay\" is due in 30 minutes. Don't forget to complete it!",
			})

			assert.True(t, strings.HasPrefix(gotAuth, "vapid "), gotAuth)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.failed:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, ErrSubscriptionGone)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewWebPush_RequiresKeys(t *testing.T) {
	_, err := NewWebPush("", "", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
