// Package persona はオンボーディングで入力されるビジネスペルソナの受付と、
// 強化ジョブの再実行要求を提供する。
package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/repository"
	"github.com/hitoshi/advisorhub/internal/security"
)

// 入力項目ごとの最大文字数
const (
	MaxBusinessNameLength = 200
	MaxIndustryLength     = 200
	MaxAudienceLength     = 2000
	MaxGoalsLength        = 2000
	MaxWebsiteURLLength   = 2048
)

// Input はオンボーディングの回答。
type Input struct {
	BusinessName string
	Industry     string
	Audience     string
	Goals        string
	WebsiteURL   string
}

// Service はペルソナのサービス層。
type Service struct {
	repo      repository.PersonaRepository
	sanitizer security.TextSanitizer
	urlGuard  security.URLGuard
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.PersonaRepository, sanitizer security.TextSanitizer, urlGuard security.URLGuard) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		urlGuard:  urlGuard,
		now:       time.Now,
	}
}

// Save はペルソナを作成または更新し、強化ジョブを pending で登録する。
// テキスト項目はマークアップを除去して上限文字数に切り詰める。
func (s *Service) Save(ctx context.Context, userID string, in Input) (*model.Persona, error) {
	if !model.IsValidID(userID) {
		return nil, model.NewValidationError("ユーザーIDの形式が不正です")
	}

	p := &model.Persona{
		ID:           uuid.New().String(),
		UserID:       userID,
		BusinessName: s.sanitizer.Sanitize(in.BusinessName, MaxBusinessNameLength),
		Industry:     s.sanitizer.Sanitize(in.Industry, MaxIndustryLength),
		Audience:     s.sanitizer.Sanitize(in.Audience, MaxAudienceLength),
		Goals:        s.sanitizer.Sanitize(in.Goals, MaxGoalsLength),
		UpdatedAt:    s.now().UTC(),
	}
	if p.BusinessName == "" {
		return nil, model.NewValidationError("business_name は必須です")
	}

	website, err := s.normalizeWebsite(in.WebsiteURL)
	if err != nil {
		return nil, err
	}
	p.WebsiteURL = website

	if err := s.repo.Upsert(ctx, p); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("ペルソナの保存に失敗しました: %w", err)
	}

	slog.Info("ペルソナを保存し強化ジョブを登録しました",
		slog.String("user_id", userID),
		slog.String("persona_id", p.ID),
	)
	return p, nil
}

// normalizeWebsite はWebサイトURLを検証する。空文字は未入力として許可する。
func (s *Service) normalizeWebsite(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if len(raw) > MaxWebsiteURLLength {
		return "", model.NewValidationError(fmt.Sprintf("website_url は%d文字以内で指定してください", MaxWebsiteURLLength))
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if err := s.urlGuard.ValidateURL(raw); err != nil {
		slog.Warn("WebサイトURLを拒否しました",
			slog.String("url", raw),
			slog.String("error", err.Error()),
		)
		return "", model.NewValidationError("website_url には公開されているWebサイトのURLを指定してください")
	}
	return raw, nil
}

// Get はユーザーのペルソナを返す。未作成の場合は PERSONA_NOT_FOUND。
func (s *Service) Get(ctx context.Context, userID string) (*model.Persona, error) {
	if !model.IsValidID(userID) {
		return nil, model.NewValidationError("ユーザーIDの形式が不正です")
	}
	p, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ペルソナの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPersonaNotFoundError()
	}
	return p, nil
}

// RequestEnrichment は終端状態のペルソナについて強化ジョブを再登録する。
func (s *Service) RequestEnrichment(ctx context.Context, userID string) (*model.Persona, error) {
	if !model.IsValidID(userID) {
		return nil, model.NewValidationError("ユーザーIDの形式が不正です")
	}

	p, err := s.repo.RequestEnrichment(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrPersonaNotFound):
		return nil, model.NewPersonaNotFoundError()
	case errors.Is(err, repository.ErrEnrichmentInFlight):
		return nil, model.NewEnrichmentInFlightError()
	default:
		return nil, fmt.Errorf("強化ジョブの登録に失敗しました: %w", err)
	}

	slog.Info("強化ジョブを再登録しました",
		slog.String("user_id", userID),
		slog.String("persona_id", p.ID),
	)
	return p, nil
}
