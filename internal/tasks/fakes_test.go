package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"studylock-backend/internal/verification"
)

type memStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]Task
	order []uuid.UUID
}

func newMemStore(seed ...Task) *memStore {
	s := &memStore{tasks: map[uuid.UUID]Task{}}
	for _, t := range seed {
		s.put(t)
	}
	return s
}

func (s *memStore) put(t Task) {
	if _, ok := s.tasks[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.tasks[t.ID] = t
}

func (s *memStore) sorted(keep func(Task) bool) []Task {
	out := []Task{}
	for _, id := range s.order {
		if t, ok := s.tasks[id]; ok && keep(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

func (s *memStore) Insert(_ context.Context, t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Status = StatusPending
	s.put(t)
	return t, nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *memStore) ListVisible(_ context.Context, userID uuid.UUID) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(t Task) bool { return t.VisibleTo(userID) }), nil
}

func (s *memStore) ListOpen(_ context.Context, userID uuid.UUID) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(t Task) bool { return t.UserID == userID && t.Status.Open() }), nil
}

func (s *memStore) Delete(_ context.Context, userID, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(s.tasks, id)
	return true, nil
}

func (s *memStore) HashUsedByOtherUser(_ context.Context, hash string, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ProofHash == hash && t.UserID != userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) AttachProof(_ context.Context, id uuid.UUID, p proofUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || !t.Status.Open() {
		return ErrInvalidTransition
	}
	t.Status = StatusSubmitted
	t.ProofText, t.ProofURL, t.ProofHash = p.Text, p.URL, p.Hash
	at := p.SubmittedAt
	t.SubmittedAt = &at
	s.tasks[id] = t
	return nil
}

func (s *memStore) RecordVerdict(_ context.Context, id uuid.UUID, v verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != StatusSubmitted {
		return ErrInvalidTransition
	}
	c := v.Confidence
	t.Status = v.Status
	t.AIVerified = true
	t.AIFeedback = v.Feedback
	t.AIConfidence = &c
	t.PointsEarned = v.Points
	t.ApprovedAt = v.ApprovedAt
	s.tasks[id] = t
	return nil
}

type memFiles struct {
	objects map[string][]byte
	deleted []string
}

func newMemFiles() *memFiles {
	return &memFiles{objects: map[string][]byte{}}
}

func (f *memFiles) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	f.objects[key] = body
	return key, nil
}

func (f *memFiles) Delete(_ context.Context, ref string) error {
	delete(f.objects, ref)
	f.deleted = append(f.deleted, ref)
	return nil
}

type stubVerifier struct {
	result verification.Result
	err    error
	reqs   []verification.Request
}

func (v *stubVerifier) Verify(_ context.Context, req verification.Request) (verification.Result, error) {
	v.reqs = append(v.reqs, req)
	return v.result, v.err
}

type countingProfiles struct {
	approvals map[uuid.UUID]int
	err       error
}

func (p *countingProfiles) RecordApproval(_ context.Context, userID uuid.UUID) error {
	if p.err != nil {
		return p.err
	}
	if p.approvals == nil {
		p.approvals = map[uuid.UUID]int{}
	}
	p.approvals[userID]++
	return nil
}

// snapshotTx rolls the store back when the callback fails.
type snapshotTx struct {
	store *memStore
}

var errRollback = errors.New("rolled back")

func (tx snapshotTx) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	tx.store.mu.Lock()
	saved := make(map[uuid.UUID]Task, len(tx.store.tasks))
	for k, v := range tx.store.tasks {
		saved[k] = v
	}
	tx.store.mu.Unlock()

	if err := fn(ctx); err != nil {
		tx.store.mu.Lock()
		tx.store.tasks = saved
		tx.store.mu.Unlock()
		return errors.Join(errRollback, err)
	}
	return nil
}
