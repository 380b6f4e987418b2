package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/otoichi/internal/model"
)

// --- モック定義 ---

type mockSessionFinder struct {
	findByTokenFn func(ctx context.Context, token string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	if m.findByTokenFn != nil {
		return m.findByTokenFn(ctx, token)
	}
	return nil, nil
}

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id int64) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

var _ SessionFinder = (*mockSessionFinder)(nil)
var _ UserFinder = (*mockUserFinder)(nil)

func validSessionFinders() (*mockSessionFinder, *mockUserFinder) {
	sessions := &mockSessionFinder{
		findByTokenFn: func(ctx context.Context, token string) (*model.Session, error) {
			return &model.Session{Token: token, UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	users := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, Name: "Test User", Role: model.RoleUser}, nil
		},
	}
	return sessions, users
}

// --- NewSessionMiddleware ---

func TestSessionMiddleware_ValidCookie_InjectsUser(t *testing.T) {
	sessions, users := validSessionFinders()

	var gotUser *model.User
	handler := NewSessionMiddleware(sessions, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotUser == nil || gotUser.ID != 7 {
		t.Errorf("user in context = %+v, want ID 7", gotUser)
	}
}

func TestSessionMiddleware_NoCookie_Returns401(t *testing.T) {
	sessions, users := validSessionFinders()

	handler := NewSessionMiddleware(sessions, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSessionMiddleware_ExpiredSession_Returns401(t *testing.T) {
	sessions := &mockSessionFinder{
		findByTokenFn: func(ctx context.Context, token string) (*model.Session, error) {
			// 期限切れ -> リポジトリはnilを返す
			return nil, nil
		},
	}

	handler := NewSessionMiddleware(sessions, &mockUserFinder{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "expired"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSessionMiddleware_RepoError_Returns401(t *testing.T) {
	sessions := &mockSessionFinder{
		findByTokenFn: func(ctx context.Context, token string) (*model.Session, error) {
			return nil, errors.New("db down")
		},
	}

	handler := NewSessionMiddleware(sessions, &mockUserFinder{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "token"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// --- NewOptionalSessionMiddleware ---

func TestOptionalSessionMiddleware_NoCookie_PassesAnonymous(t *testing.T) {
	sessions, users := validSessionFinders()

	var called bool
	handler := NewOptionalSessionMiddleware(sessions, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if user := OptionalUserFromContext(r.Context()); user != nil {
			t.Errorf("expected anonymous, got user %+v", user)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("handler should be called for anonymous request")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestOptionalSessionMiddleware_ValidCookie_InjectsUser(t *testing.T) {
	sessions, users := validSessionFinders()

	handler := NewOptionalSessionMiddleware(sessions, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := OptionalUserFromContext(r.Context())
		if user == nil || user.ID != 7 {
			t.Errorf("user in context = %+v, want ID 7", user)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestOptionalSessionMiddleware_RepoError_PassesAnonymous(t *testing.T) {
	sessions := &mockSessionFinder{
		findByTokenFn: func(ctx context.Context, token string) (*model.Session, error) {
			return nil, errors.New("db down")
		},
	}

	handler := NewOptionalSessionMiddleware(sessions, &mockUserFinder{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "token"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (anonymous fallback)", rec.Code)
	}
}

// --- context helpers ---

func TestUserFromContext_Missing_ReturnsError(t *testing.T) {
	if _, err := UserFromContext(context.Background()); err == nil {
		t.Error("expected error for context without user")
	}
}

func TestContextWithUser_RoundTrip(t *testing.T) {
	want := &model.User{ID: 42}
	ctx := ContextWithUser(context.Background(), want)

	got, err := UserFromContext(ctx)
	if err != nil {
		t.Fatalf("UserFromContext() error = %v", err)
	}
	if got.ID != 42 {
		t.Errorf("user ID = %d, want 42", got.ID)
	}
}
