package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/otoichi/internal/model"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	listFn   func(ctx context.Context, requester *model.User) ([]*model.User, error)
	createFn func(ctx context.Context, email, name string) (*model.User, error)
}

func (m *mockUserService) List(ctx context.Context, requester *model.User) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, requester)
	}
	return nil, nil
}

func (m *mockUserService) Create(ctx context.Context, email, name string) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, email, name)
	}
	return nil, nil
}

// --- GET /api/users テスト ---

func TestUserHandler_ListUsers_AdminSuccess(t *testing.T) {
	svc := &mockUserService{
		listFn: func(ctx context.Context, requester *model.User) ([]*model.User, error) {
			if !requester.IsAdmin() {
				t.Error("requester should be admin")
			}
			return []*model.User{
				{ID: 1, Email: "a@example.com", Name: "a", Role: model.RoleAdmin},
				{ID: 2, Email: "b@example.com", Name: "b", Role: model.RoleUser},
			}, nil
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req = withUser(req, &model.User{ID: 1, Role: model.RoleAdmin})
	w := httptest.NewRecorder()

	h.ListUsers(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, w)
	users, ok := body["users"].([]interface{})
	if !ok || len(users) != 2 {
		t.Errorf("users = %v, want 2 entries", body["users"])
	}
}

func TestUserHandler_ListUsers_NonAdmin_ReturnsForbidden(t *testing.T) {
	svc := &mockUserService{
		listFn: func(ctx context.Context, requester *model.User) ([]*model.User, error) {
			return nil, model.NewForbiddenError()
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req = withUser(req, &model.User{ID: 2, Role: model.RoleUser})
	w := httptest.NewRecorder()

	h.ListUsers(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != "FORBIDDEN" {
		t.Errorf("code = %q, want %q", result["code"], "FORBIDDEN")
	}
}

func TestUserHandler_ListUsers_NoUser_ReturnsUnauthorized(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	w := httptest.NewRecorder()

	h.ListUsers(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- POST /api/users テスト ---

func TestUserHandler_CreateUser_Success(t *testing.T) {
	svc := &mockUserService{
		createFn: func(ctx context.Context, email, name string) (*model.User, error) {
			if email != "new@example.com" {
				t.Errorf("email = %q, want %q", email, "new@example.com")
			}
			return &model.User{ID: 10, Email: email, Name: "new", Role: model.RoleUser}, nil
		},
	}
	h := NewUserHandler(svc)

	body := `{"email": "new@example.com", "name": "new"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.CreateUser(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	respBody := decodeJSONBody(t, w)
	if respBody["id"] != float64(10) {
		t.Errorf("id = %v, want 10", respBody["id"])
	}
	if respBody["email"] != "new@example.com" {
		t.Errorf("email = %v, want %q", respBody["email"], "new@example.com")
	}
}

func TestUserHandler_CreateUser_EmptyEmail_ReturnsBadRequest(t *testing.T) {
	svc := &mockUserService{
		createFn: func(ctx context.Context, email, name string) (*model.User, error) {
			return nil, model.NewInvalidRequestError("emailは必須です")
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString(`{"email": ""}`))
	w := httptest.NewRecorder()

	h.CreateUser(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestUserHandler_CreateUser_DuplicateEmail_ReturnsConflict(t *testing.T) {
	svc := &mockUserService{
		createFn: func(ctx context.Context, email, name string) (*model.User, error) {
			return nil, model.NewEmailExistsError(email)
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString(`{"email": "dup@example.com"}`))
	w := httptest.NewRecorder()

	h.CreateUser(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != "EMAIL_EXISTS" {
		t.Errorf("code = %q, want %q", result["code"], "EMAIL_EXISTS")
	}
}

func TestUserHandler_CreateUser_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString(`{`))
	w := httptest.NewRecorder()

	h.CreateUser(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
