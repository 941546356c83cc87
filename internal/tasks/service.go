package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"studylock-backend/internal/httpx"
	"studylock-backend/internal/logging"
	"studylock-backend/internal/storage"
	"studylock-backend/internal/verification"
)

const (
	// PointsPerApproval is awarded once, when a proof is approved.
	PointsPerApproval = 10
	// MaxProofSize bounds an uploaded proof artifact.
	MaxProofSize = 10 << 20
)

// Store is the persistence the service needs. *Repo implements it.
type Store interface {
	Insert(ctx context.Context, t Task) (Task, error)
	Get(ctx context.Context, id uuid.UUID) (Task, error)
	ListVisible(ctx context.Context, userID uuid.UUID) ([]Task, error)
	ListOpen(ctx context.Context, userID uuid.UUID) ([]Task, error)
	Delete(ctx context.Context, userID, id uuid.UUID) (bool, error)
	HashUsedByOtherUser(ctx context.Context, hash string, userID uuid.UUID) (bool, error)
	AttachProof(ctx context.Context, id uuid.UUID, p proofUpdate) error
	RecordVerdict(ctx context.Context, id uuid.UUID, v verdict) error
}

type ProofStorage interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

type Verifier interface {
	Verify(ctx context.Context, req verification.Request) (verification.Result, error)
}

type ProfileRecorder interface {
	RecordApproval(ctx context.Context, userID uuid.UUID) error
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(context.Context) error) error
}

type Service struct {
	store    Store
	files    ProofStorage
	verifier Verifier
	profiles ProfileRecorder
	tx       Transactor
	log      logging.Logger
	now      func() time.Time
}

// NewService wires the task workflow. files may be nil when object
// storage is not configured; text-only proofs still work then.
func NewService(store Store, files ProofStorage, verifier Verifier, profiles ProfileRecorder, tx Transactor, log logging.Logger) *Service {
	return &Service{
		store:    store,
		files:    files,
		verifier: verifier,
		profiles: profiles,
		tx:       tx,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := httpx.Validate(in); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.BuddyID != nil && *in.BuddyID == userID {
		return Task{}, ErrInvalidBuddy
	}

	t, err := s.store.Insert(ctx, Task{
		ID:          uuid.New(),
		UserID:      userID,
		BuddyID:     in.BuddyID,
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		Deadline:    in.Deadline.UTC(),
	})
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Task, error) {
	return s.store.ListVisible(ctx, userID)
}

// ListOpen feeds the lock: the user's own pending and rejected tasks.
func (s *Service) ListOpen(ctx context.Context, userID uuid.UUID) ([]Task, error) {
	return s.store.ListOpen(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if !t.VisibleTo(userID) {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	t, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if t.UserID != userID {
		return ErrForbidden
	}
	ok, err := s.store.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SubmitProof runs the whole proof flow for one task. The task is only
// mutated after a verdict exists, and then in a single transaction, so a
// failed verification leaves it exactly as it was.
func (s *Service) SubmitProof(ctx context.Context, userID, id uuid.UUID, in ProofInput) (Task, verification.Result, error) {
	t, err := s.Get(ctx, userID, id)
	if err != nil {
		return Task{}, verification.Result{}, err
	}
	if t.UserID != userID {
		return Task{}, verification.Result{}, ErrForbidden
	}
	if !t.Status.CanTransition(StatusSubmitted) {
		return Task{}, verification.Result{}, ErrInvalidTransition
	}

	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" && len(in.File) == 0 {
		return Task{}, verification.Result{}, ErrProofRequired
	}

	now := s.now().UTC()
	var ref, hash string
	if len(in.File) > 0 {
		if ref, hash, err = s.storeArtifact(ctx, t, in, now); err != nil {
			return Task{}, verification.Result{}, err
		}
	}

	result, err := s.verifier.Verify(ctx, verification.Request{
		TaskTitle:       t.Title,
		TaskDescription: t.Description,
		TaskType:        string(t.Type),
		ProofText:       in.Text,
		ProofURL:        ref,
	})
	if err != nil {
		s.discard(ctx, ref)
		return Task{}, verification.Result{}, err
	}

	v := verdict{
		Status:     StatusRejected,
		Feedback:   result.Feedback,
		Confidence: int(math.Round(result.Confidence)),
	}
	if result.Approved {
		v.Status = StatusApproved
		v.Points = PointsPerApproval
		v.ApprovedAt = &now
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.AttachProof(ctx, id, proofUpdate{Text: in.Text, URL: ref, Hash: hash, SubmittedAt: now}); err != nil {
			return fmt.Errorf("attach proof: %w", err)
		}
		if err := s.store.RecordVerdict(ctx, id, v); err != nil {
			return fmt.Errorf("record verdict: %w", err)
		}
		if v.Status == StatusApproved {
			return s.profiles.RecordApproval(ctx, userID)
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, ref)
		return Task{}, verification.Result{}, err
	}

	s.log.Info("proof judged", "task", id, "user", userID, "status", v.Status, "confidence", v.Confidence)

	updated, err := s.store.Get(ctx, id)
	if err != nil {
		return Task{}, verification.Result{}, err
	}
	return updated, result, nil
}

// storeArtifact checks size and originality, then uploads.
func (s *Service) storeArtifact(ctx context.Context, t Task, in ProofInput, now time.Time) (ref, hash string, err error) {
	if len(in.File) > MaxProofSize {
		return "", "", ErrProofTooLarge
	}

	sum := sha256.Sum256(in.File)
	hash = hex.EncodeToString(sum[:])

	dup, err := s.store.HashUsedByOtherUser(ctx, hash, t.UserID)
	if err != nil {
		return "", "", fmt.Errorf("check proof hash: %w", err)
	}
	if dup {
		s.log.Warn("duplicate proof refused", "task", t.ID, "user", t.UserID)
		return "", "", ErrDuplicateProof
	}

	if s.files == nil {
		return "", "", ErrStorageUnavailable
	}
	key := storage.ProofKey(t.UserID.String(), t.ID.String(), now, in.FileName)
	ref, err = s.files.Put(ctx, key, in.File, in.ContentType)
	if err != nil {
		return "", "", fmt.Errorf("upload proof: %w", err)
	}
	return ref, hash, nil
}

func (s *Service) discard(ctx context.Context, ref string) {
	if ref == "" || s.files == nil {
		return
	}
	if err := s.files.Delete(context.WithoutCancel(ctx), ref); err != nil {
		s.log.Warn("could not remove orphaned proof upload", "ref", ref, "error", err)
	}
}
