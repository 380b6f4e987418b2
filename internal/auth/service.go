// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/otoichi/internal/model"
	"github.com/hitoshi/otoichi/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string // IdPがemailを返さない場合は空
	Name           string
	AvatarURL      string
	Provider       string // "google", "mezon"
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// GoogleとMezonが同一の契約を実装する。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
// プロバイダー名をキーに複数のOAuthProviderを保持する。
type Service struct {
	providers   map[string]OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	providers map[string]OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		providers:   providers,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// Provider は指定された名前のOAuthProviderを返す。未登録の場合はnilを返す。
func (s *Service) Provider(name string) OAuthProvider {
	return s.providers[name]
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// ユーザーはemailをキーにupsertされる: 初回ログインで作成、以降は
// IdPから取得した最新のname/avatar_urlで更新する。
// IdPがemailを返さない場合は "<provider>_<subject>@example.invalid" を合成する。
func (s *Service) HandleCallback(ctx context.Context, provider, code string) (*model.Session, error) {
	p := s.providers[provider]
	if p == nil {
		return nil, fmt.Errorf("unknown oauth provider: %s", provider)
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. email合成とデフォルト表示名
	email := userInfo.Email
	if email == "" {
		email = fmt.Sprintf("%s_%s@example.invalid", userInfo.Provider, userInfo.ProviderUserID)
	}
	name := userInfo.Name
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	upsert := &model.User{
		Email:     email,
		Name:      name,
		AvatarURL: userInfo.AvatarURL,
	}
	if userInfo.Provider == ProviderMezon {
		upsert.MezonID = userInfo.ProviderUserID
	}

	// 3. emailをキーにupsert
	user, err := s.userRepo.UpsertByEmail(ctx, upsert)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("provider", userInfo.Provider),
	)

	// 4. セッションを発行
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session token is required")
	}

	if err := s.sessionRepo.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッショントークンから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, fmt.Errorf("session token is required")
	}

	session, err := s.sessionRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID int64) (*model.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &model.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
