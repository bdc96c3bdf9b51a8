// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/repository"
)

// Profile はユーザーと、そのユーザーが管理者かどうかを表す。
type Profile struct {
	User    *model.User
	IsAdmin bool
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	isAdmin  func(email string) bool
}

// NewService はServiceの新しいインスタンスを生成する。
// isAdminがnilの場合は誰も管理者として扱わない。
func NewService(userRepo repository.UserRepository, isAdmin func(email string) bool) *Service {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &Service{userRepo: userRepo, isAdmin: isAdmin}
}

// GetProfile はユーザーと管理者フラグを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return &Profile{User: user, IsAdmin: s.isAdmin(user.Email)}, nil
}

// IsAdmin はユーザーが管理者かどうかを返す。ユーザーが存在しない場合はfalse。
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	profile, err := s.GetProfile(ctx, userID)
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return profile.IsAdmin, nil
}

// Withdraw はユーザーの退会処理を実行する。
// セッション・identity・ペルソナは削除する。招待台帳に履歴がある場合、
// 監査ログを保つためユーザー行は匿名化して残し、履歴がなければ削除する。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	anonymized, err := s.userRepo.Withdraw(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return model.NewUserNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("退会処理に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
		slog.Bool("anonymized", anonymized),
	)
	return nil
}
