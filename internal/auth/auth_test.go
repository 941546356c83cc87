package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studylock-backend/internal/analytics"
	"studylock-backend/internal/logging"
)

var secret = []byte("test-secret")

type fakeUsers struct {
	byEmail map[string]User
	deleted []uuid.UUID
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: map[string]User{}}
}

func (f *fakeUsers) Create(_ context.Context, email, hash string) (User, error) {
	if _, ok := f.byEmail[email]; ok {
		return User{}, ErrEmailTaken
	}
	u := User{ID: uuid.New(), Email: email, PasswordHash: hash}
	f.byEmail[email] = u
	return u, nil
}

func (f *fakeUsers) ByEmail(_ context.Context, email string) (User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return User{}, ErrNoUser
	}
	return u, nil
}

func (f *fakeUsers) ByID(_ context.Context, id uuid.UUID) (User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrNoUser
}

func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	for email, u := range f.byEmail {
		if u.ID == id {
			delete(f.byEmail, email)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return ErrNoUser
}

type inlineTx struct{ calls int }

func (tx *inlineTx) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	tx.calls++
	return fn(ctx)
}

func TestTokenRoundTrip(t *testing.T) {
	id := uuid.New()
	tok, err := GenerateToken(secret, id)
	require.NoError(t, err)

	got, err := ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseToken([]byte("other"), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Rejects(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": uuid.NewString(),
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	s, err := expired.SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(secret, s)
	assert.ErrorIs(t, err, ErrInvalidToken)

	legacy := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 42})
	s, err = legacy.SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(secret, s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	id := uuid.New()
	tok, err := GenerateToken(secret, id)
	require.NoError(t, err)

	var seen, seenAnalytics uuid.UUID
	h := New(secret).Wrap(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		seenAnalytics, _ = analytics.UserIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, seen)
	assert.Equal(t, id, seenAnalytics)
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func TestRegisterLoginMe(t *testing.T) {
	users := newFakeUsers()
	register := RegisterHandler(users, secret, logging.Discard())
	login := LoginHandler(users, secret)

	rec := post(register, `{"email":"ana@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEqual(t, "hunter22", users.byEmail["ana@example.com"].PasswordHash)

	rec = post(register, `{"email":"ana@example.com","password":"hunter22"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post(register, `{"email":"not-an-email","password":"hunter22"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(login, `{"email":"ana@example.com","password":"wrong-pass"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(login, `{"email":"ana@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		UserID uuid.UUID `json:"user_id"`
		Token  string    `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	me := New(secret).Wrap(MeHandler(users))
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	rec = httptest.NewRecorder()
	me(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ana@example.com")
}

func TestDeleteAccount(t *testing.T) {
	users := newFakeUsers()
	u, err := users.Create(context.Background(), "bo@example.com", "x")
	require.NoError(t, err)
	tx := &inlineTx{}

	h := DeleteAccountHandler(users, tx, logging.Discard())
	req := httptest.NewRequest(http.MethodDelete, "/auth/account", nil)
	req = req.WithContext(WithUserID(req.Context(), u.ID))

	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, []uuid.UUID{u.ID}, users.deleted)

	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
