package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMezonOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewMezonOAuthProvider(MezonOAuthConfig{
		ClientID:    "mezon-client-id",
		RedirectURL: "http://localhost:8080/auth/mezon/callback",
	})

	url := provider.GetLoginURL("state-abc")

	tests := []struct {
		name     string
		contains string
	}{
		{"client_id", "client_id=mezon-client-id"},
		{"state", "state=state-abc"},
		{"response_type", "response_type=code"},
		{"scope", "openid+offline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(url, tt.contains) {
				t.Errorf("URL should contain %q, got %q", tt.contains, url)
			}
		})
	}
}

func TestMezonOAuthProvider_ExchangeCode_Success(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse token form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "mezon-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer mezon-access-token" {
			t.Errorf("unexpected Authorization header: %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sub":        "mezon-sub-777",
			"username":   "otouser",
			"avatar_url": "https://cdn.mezon.ai/a.png",
		})
	}))
	defer userInfoServer.Close()

	provider := NewMezonOAuthProvider(MezonOAuthConfig{
		ClientID:     "mezon-client-id",
		ClientSecret: "mezon-secret",
		RedirectURL:  "http://localhost:8080/auth/mezon/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	userInfo, err := provider.ExchangeCode(context.Background(), "mezon-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if userInfo.Provider != ProviderMezon {
		t.Errorf("provider = %q, want %q", userInfo.Provider, ProviderMezon)
	}
	if userInfo.ProviderUserID != "mezon-sub-777" {
		t.Errorf("providerUserID = %q", userInfo.ProviderUserID)
	}
	// display_nameが無い場合はusernameが表示名になる
	if userInfo.Name != "otouser" {
		t.Errorf("name = %q, want %q", userInfo.Name, "otouser")
	}
	if userInfo.Email != "" {
		t.Errorf("email = %q, want empty", userInfo.Email)
	}
}

func TestMezonOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer tokenServer.Close()

	provider := NewMezonOAuthProvider(MezonOAuthConfig{
		ClientID:     "mezon-client-id",
		ClientSecret: "mezon-secret",
		RedirectURL:  "http://localhost:8080/auth/mezon/callback",
		TokenURL:     tokenServer.URL,
	})

	_, err := provider.ExchangeCode(context.Background(), "bad-code")
	if err == nil {
		t.Fatal("expected error from ExchangeCode with invalid code")
	}
}

func TestMezonOAuthProvider_ExchangeCode_EmptySub_ReturnsError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "mezon-access-token",
		})
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{})
	}))
	defer userInfoServer.Close()

	provider := NewMezonOAuthProvider(MezonOAuthConfig{
		ClientID:     "mezon-client-id",
		ClientSecret: "mezon-secret",
		RedirectURL:  "http://localhost:8080/auth/mezon/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	_, err := provider.ExchangeCode(context.Background(), "code")
	if err == nil {
		t.Fatal("expected error for user info without sub")
	}
}
