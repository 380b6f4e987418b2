package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultMezonAuthURL     = "https://oauth2.mezon.ai/oauth2/auth"
	defaultMezonTokenURL    = "https://oauth2.mezon.ai/oauth2/token"
	defaultMezonUserInfoURL = "https://oauth2.mezon.ai/userinfo"
)

// MezonOAuthConfig はMezon OAuthプロバイダーの設定。
type MezonOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// MezonOAuthProvider はMezon OAuth 2.0による認証を提供する。
// MezonはQR決済のユーザー識別にも使われるため、subをmezon_idとして保存する。
type MezonOAuthProvider struct {
	config MezonOAuthConfig
}

// NewMezonOAuthProvider はMezonOAuthProviderを生成する。
func NewMezonOAuthProvider(config MezonOAuthConfig) *MezonOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultMezonAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultMezonTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultMezonUserInfoURL
	}
	return &MezonOAuthProvider{config: config}
}

// GetLoginURL はMezon OAuthの認証URLを生成する。
func (p *MezonOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"openid offline"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// mezonTokenResponse はMezonのトークンエンドポイントのレスポンス。
type mezonTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// mezonUserInfo はMezonのユーザー情報エンドポイントのレスポンス。
// Mezonはemailを返さないことがあり、その場合は上位層でemailを合成する。
type mezonUserInfo struct {
	Sub       string `json:"sub"`
	Email     string `json:"email"`
	Name      string `json:"display_name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *MezonOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	tokenResp, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	userInfo, err := p.fetchUserInfo(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	name := userInfo.Name
	if name == "" {
		name = userInfo.Username
	}

	return &OAuthUserInfo{
		ProviderUserID: userInfo.Sub,
		Email:          userInfo.Email,
		Name:           name,
		AvatarURL:      userInfo.AvatarURL,
		Provider:       ProviderMezon,
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
// Mezonのトークンエンドポイントはclient_secret_post方式を受け付ける。
func (p *MezonOAuthProvider) exchangeToken(ctx context.Context, code string) (*mezonTokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp mezonTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

// fetchUserInfo はアクセストークンでMezonのユーザー情報を取得する。
func (p *MezonOAuthProvider) fetchUserInfo(ctx context.Context, accessToken string) (*mezonUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo mezonUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	if userInfo.Sub == "" {
		return nil, fmt.Errorf("empty sub in user info response")
	}

	return &userInfo, nil
}

// compile-time interface check
var _ OAuthProvider = (*MezonOAuthProvider)(nil)
