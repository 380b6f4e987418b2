// Package user はユーザー管理のビジネスロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/otoichi/internal/model"
	"github.com/hitoshi/otoichi/internal/repository"
)

// Service はユーザーの取得・作成・一覧を提供する。
type Service struct {
	userRepo repository.UserRepository
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, logger *slog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		logger:   logger,
	}
}

// Get は指定IDのユーザーを返す。見つからない場合はUSER_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// List は全ユーザーを返す。管理者のみが呼び出せる。
// requesterが管理者でない場合はFORBIDDENを返す。
func (s *Service) List(ctx context.Context, requester *model.User) ([]*model.User, error) {
	if requester == nil || !requester.IsAdmin() {
		return nil, model.NewForbiddenError()
	}

	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Create はユーザーを直接作成する。
// emailが空の場合はINVALID_REQUEST、重複する場合はEMAIL_EXISTSを返す。
func (s *Service) Create(ctx context.Context, email, name string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, model.NewInvalidRequestError("emailは必須です")
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	user, err := s.userRepo.Create(ctx, email, name)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created",
		slog.Int64("user_id", user.ID),
	)

	return user, nil
}
