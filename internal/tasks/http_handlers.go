package tasks

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"studylock-backend/internal/ai"
	"studylock-backend/internal/analytics"
	"studylock-backend/internal/auth"
	"studylock-backend/internal/httpx"
	"studylock-backend/internal/logging"
	"studylock-backend/internal/verification"
)

// multipart overhead allowed on top of the artifact itself
const formOverhead = 1 << 20

type Handlers struct {
	svc       *Service
	analytics *analytics.Recorder
	log       logging.Logger
}

func NewHandlers(svc *Service, rec *analytics.Recorder, log logging.Logger) *Handlers {
	return &Handlers{svc: svc, analytics: rec, log: log}
}

func (h *Handlers) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		result, err := h.svc.List(r.Context(), uid)
		if err != nil {
			h.fail(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, result)
	}
}

func (h *Handlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var body CreateInput
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		t, err := h.svc.Create(r.Context(), uid, body)
		if err != nil {
			h.fail(w, err)
			return
		}

		// analytics: task_created (no raw text)
		{
			env := analytics.FromRequest(r)
			env.UserID = uid
			h.analytics.Log(r.Context(), env, analytics.EventTaskCreated, map[string]any{
				"task_id":        t.ID,
				"task_type":      t.Type,
				"has_buddy":      t.BuddyID != nil,
				"title_len":      len(t.Title),
				"minutes_to_due": int(t.Deadline.Sub(t.CreatedAt).Minutes()),
			}, analytics.SourceEventKeyFromRequest(r))
		}

		httpx.WriteJSON(w, http.StatusCreated, t)
	}
}

func (h *Handlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, id, ok := h.target(w, r)
		if !ok {
			return
		}

		t, err := h.svc.Get(r.Context(), uid, id)
		if err != nil {
			h.fail(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, t)
	}
}

func (h *Handlers) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, id, ok := h.target(w, r)
		if !ok {
			return
		}

		if err := h.svc.Delete(r.Context(), uid, id); err != nil {
			h.fail(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// SubmitProof accepts multipart form data: proof_text and an optional file.
func (h *Handlers) SubmitProof() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, id, ok := h.target(w, r)
		if !ok {
			return
		}

		in, err := readProof(w, r)
		if err != nil {
			h.fail(w, err)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid

		t, result, err := h.svc.SubmitProof(r.Context(), uid, id, in)
		if errors.Is(err, ErrDuplicateProof) {
			h.analytics.Log(r.Context(), env, analytics.EventProofDuplicateRejected, map[string]any{
				"task_id": id,
			}, "")
		}
		if err != nil {
			h.fail(w, err)
			return
		}

		// analytics: proof_submitted + proof_verified
		{
			h.analytics.Log(r.Context(), env, analytics.EventProofSubmitted, map[string]any{
				"task_id":   id,
				"has_file":  len(in.File) > 0,
				"text_len":  len(in.Text),
				"file_size": len(in.File),
			}, analytics.SourceEventKeyFromRequest(r))
			h.analytics.Log(r.Context(), env, analytics.EventProofVerified, map[string]any{
				"task_id":    id,
				"approved":   result.Approved,
				"confidence": result.Confidence,
				"concerns":   len(result.Concerns),
			}, "")
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"task":         t,
			"verification": result,
		})
	}
}

func readProof(w http.ResponseWriter, r *http.Request) (ProofInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxProofSize+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return ProofInput{}, ErrProofTooLarge
		}
		return ProofInput{}, ErrProofRequired
	}

	in := ProofInput{Text: strings.TrimSpace(r.FormValue("proof_text"))}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return ProofInput{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxProofSize+1))
	if err != nil {
		return ProofInput{}, err
	}
	in.File = data
	in.FileName = header.Filename
	in.ContentType = header.Header.Get("Content-Type")
	return in, nil
}

func (h *Handlers) target(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid task id")
		return uuid.Nil, uuid.Nil, false
	}
	return uid, id, true
}

func (h *Handlers) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrDuplicateProof):
		httpx.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrProofTooLarge):
		httpx.Error(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidBuddy), errors.Is(err, ErrProofRequired):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStorageUnavailable):
		httpx.Error(w, http.StatusServiceUnavailable, err.Error())
	case isVerificationError(err):
		status, msg := verification.StatusFor(err)
		h.log.Error("proof verification failed", "status", status, "error", err)
		httpx.Error(w, status, msg)
	default:
		h.log.Error("task request failed", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func isVerificationError(err error) bool {
	var upstream *ai.UpstreamError
	return errors.Is(err, ai.ErrRateLimited) ||
		errors.Is(err, ai.ErrServiceUnavailable) ||
		errors.Is(err, ai.ErrConfiguration) ||
		errors.As(err, &upstream)
}
