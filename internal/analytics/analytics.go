package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	txStdLib "github.com/Thiht/transactor/stdlib"
	"github.com/google/uuid"

	"studylock-backend/internal/logging"
)

type CtxKey string

const (
	ctxUserIDKey CtxKey = "analytics_user_id"
)

// Event names recorded by the backend.
const (
	EventAppOpened              = "app_opened"
	EventLockShown              = "lock_shown"
	EventTaskCreated            = "task_created"
	EventProofSubmitted         = "proof_submitted"
	EventProofVerified          = "proof_verified"
	EventProofDuplicateRejected = "proof_duplicate_rejected"
	EventFocusBreak             = "focus_break"
	EventReminderSent           = "reminder_sent"
)

// Envelope is what we store with every event.
type Envelope struct {
	UserID       uuid.UUID
	SessionID    string
	Platform     string
	AppVersion   string
	DeviceLocale string
}

// FromRequest extracts event envelope fields from request.
// Backend-trustable fields only.
func FromRequest(r *http.Request) Envelope {
	platform := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Platform")))
	switch platform {
	case "ios", "android", "web":
	default:
		platform = "unknown"
	}

	locale := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if locale == "" {
		locale = strings.TrimSpace(r.Header.Get("X-Device-Locale"))
	}

	return Envelope{
		SessionID:    strings.TrimSpace(r.Header.Get("X-Session-Id")),
		Platform:     platform,
		AppVersion:   strings.TrimSpace(r.Header.Get("X-App-Version")),
		DeviceLocale: locale,
	}
}

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	uid, ok := ctx.Value(ctxUserIDKey).(uuid.UUID)
	return uid, ok
}

// Client-provided idempotency key (optional)
// If present and duplicates, insert is ignored.
func SourceEventKeyFromRequest(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("Idempotency-Key")); k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("X-Source-Event-Key"))
}

// Recorder writes analytics events. Failures are logged and swallowed:
// analytics never breaks the flow that emits it.
type Recorder struct {
	dbGetter txStdLib.DBGetter
	log      logging.Logger
	now      func() time.Time
}

func NewRecorder(dbGetter txStdLib.DBGetter, log logging.Logger) *Recorder {
	return &Recorder{dbGetter: dbGetter, log: log, now: time.Now}
}

// Log inserts one analytics event.
// Never logs sensitive raw text; caller passes sanitized props.
func (rec *Recorder) Log(ctx context.Context, env Envelope, eventName string, props any, sourceEventKey string) {
	if rec == nil || eventName == "" {
		return
	}

	userID := env.UserID
	if userID == uuid.Nil {
		uid, ok := UserIDFromContext(ctx)
		if !ok {
			return
		}
		userID = uid
	}
	if env.Platform == "" {
		env.Platform = "server"
	}

	b, err := json.Marshal(props)
	if err != nil {
		rec.log.Warn("analytics props not serializable", "event", eventName, "error", err)
		return
	}

	_, err = rec.dbGetter(ctx).ExecContext(ctx, `
		INSERT INTO analytics_events (
			event_name, event_time,
			user_id, session_id,
			platform, app_version, device_locale,
			source_event_key,
			properties
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		ON CONFLICT (source_event_key) DO NOTHING
	`, eventName, rec.now().UTC(),
		userID, nullIfEmpty(env.SessionID),
		env.Platform, nullIfEmpty(env.AppVersion), nullIfEmpty(env.DeviceLocale),
		nullIfEmpty(sourceEventKey),
		string(b),
	)
	if err != nil {
		rec.log.Warn("analytics insert failed", "event", eventName, "error", err)
	}
}

func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
