// Package server assembles the HTTP surface.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"studylock-backend/internal/analytics"
	"studylock-backend/internal/auth"
	"studylock-backend/internal/httpx"
	"studylock-backend/internal/lock"
	"studylock-backend/internal/logging"
	"studylock-backend/internal/middleware"
	"studylock-backend/internal/notify"
	"studylock-backend/internal/profiles"
	"studylock-backend/internal/reminders"
	"studylock-backend/internal/tasks"
	"studylock-backend/internal/verification"
)

var allowedHeaders = []string{
	"Authorization", "Content-Type", "X-Client-Info", "Apikey",
	"X-Session-Id", "X-Platform", "X-App-Version", "X-Device-Locale",
	"Idempotency-Key", "X-Source-Event-Key",
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(context.Context) error) error
}

type Deps struct {
	Users         auth.Users
	Tx            Transactor
	Profiles      profiles.Store
	Subscriptions notify.SubscriptionStore
	Tasks         *tasks.Handlers
	LockSource    lock.Source
	Verifier      *verification.Verifier
	Reminder      *reminders.Reminder
	Analytics     *analytics.Recorder
	Limiter       *middleware.RateLimiter

	JWTSecret      []byte
	VAPIDPublicKey string
	AllowedOrigins []string
	Log            logging.Logger
}

func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	authMW := auth.New(d.JWTSecret)
	protected := authMW.Wrap

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	}).Methods(http.MethodGet)

	// auth
	r.HandleFunc("/auth/register", auth.RegisterHandler(d.Users, d.JWTSecret, d.Log)).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", auth.LoginHandler(d.Users, d.JWTSecret)).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", protected(auth.LogoutHandler())).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", protected(auth.MeHandler(d.Users))).Methods(http.MethodGet)
	r.HandleFunc("/auth/account", protected(auth.DeleteAccountHandler(d.Users, d.Tx, d.Log))).Methods(http.MethodDelete)

	// tasks
	r.HandleFunc("/tasks", protected(d.Tasks.List())).Methods(http.MethodGet)
	r.HandleFunc("/tasks", protected(d.Tasks.Create())).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", protected(d.Tasks.Get())).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", protected(d.Tasks.Delete())).Methods(http.MethodDelete)
	r.HandleFunc("/tasks/{id}/proof", protected(d.Limiter.Wrap(d.Tasks.SubmitProof()))).Methods(http.MethodPost)

	// lock + focus
	r.HandleFunc("/lock", protected(lock.StateHandler(d.LockSource, d.Log))).Methods(http.MethodGet)
	r.HandleFunc("/profile", protected(profiles.GetProfileHandler(d.Profiles, d.Log))).Methods(http.MethodGet)
	r.HandleFunc("/focus/breaks", protected(profiles.FocusBreakHandler(d.Profiles, d.Analytics, d.Log))).Methods(http.MethodPost)

	// push
	r.HandleFunc("/push/public-key", notify.PublicKeyHandler(d.VAPIDPublicKey)).Methods(http.MethodGet)
	r.HandleFunc("/push/subscriptions", protected(notify.SubscribeHandler(d.Subscriptions, d.Log))).Methods(http.MethodPost)
	r.HandleFunc("/push/subscriptions", protected(notify.UnsubscribeHandler(d.Subscriptions, d.Log))).Methods(http.MethodDelete)

	// analytics
	r.HandleFunc("/events/app-opened", protected(analytics.AppOpenedHandler(d.Analytics))).Methods(http.MethodPost)
	r.HandleFunc("/events/lock-shown", protected(analytics.LockShownHandler(d.Analytics))).Methods(http.MethodPost)

	// functions
	r.HandleFunc("/functions/verify-proof", protected(d.Limiter.Wrap(verification.VerifyHandler(d.Verifier, d.Log)))).Methods(http.MethodPost)
	r.HandleFunc("/functions/send-deadline-reminder", reminders.Handler(d.Reminder, d.Log)).Methods(http.MethodPost)

	r.Use(middleware.RequestLogger(d.Log))

	c := cors.New(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   allowedHeaders,
		AllowCredentials: true,
	})
	return c.Handler(r)
}
