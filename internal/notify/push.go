// Package notify stores Web Push subscriptions and delivers notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
)

// ErrSubscriptionGone means the push service no longer knows the
// endpoint (404/410); the subscription should be deleted.
var ErrSubscriptionGone = errors.New("push subscription expired")

var ErrNotConfigured = errors.New("web push is not configured")

type Subscription struct {
	UserID   uuid.UUID `json:"-"`
	Endpoint string    `json:"endpoint" validate:"required,url"`
	Keys     Keys      `json:"keys"`
}

type Keys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// Message is the JSON payload the service worker displays.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

type WebPush struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
	client     webpush.HTTPClient
}

func NewWebPush(publicKey, privateKey, subject string) (*WebPush, error) {
	if publicKey == "" || privateKey == "" {
		return nil, ErrNotConfigured
	}
	return &WebPush{
		publicKey:  publicKey,
		privateKey: privateKey,
		// the library adds the mailto: scheme itself
		subscriber: strings.TrimPrefix(subject, "mailto:"),
		ttl:        3600,
		client:     http.DefaultClient,
	}, nil
}

func (w *WebPush) Send(ctx context.Context, sub Subscription, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.subscriber,
		VAPIDPublicKey:  w.publicKey,
		VAPIDPrivateKey: w.privateKey,
		TTL:             w.ttl,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("web push: status %d", resp.StatusCode)
	}
	return nil
}
