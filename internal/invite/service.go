// Package invite は招待コード台帳（発行枠・発行・引き換え・監査ログ）のドメインロジックを提供する。
package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/advisorhub/internal/metrics"
	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/repository"
)

const (
	// maxCreateAttempts はコード衝突時の再生成を含めた発行の最大試行回数。
	maxCreateAttempts = 5

	// DefaultAuditLimit は監査ログ取得件数のデフォルト値。
	DefaultAuditLimit = 50
	// MaxAuditLimit は監査ログ取得件数の上限。
	MaxAuditLimit = 200
)

// ErrCodeSpaceExhausted はコード衝突が続き発行できなかったことを表す内部エラー。
var ErrCodeSpaceExhausted = errors.New("invite code generation kept colliding")

// CreateResult は招待コード発行の結果。
type CreateResult struct {
	Code             string
	AvailableInvites int
}

// Requester は監査ログを要求したユーザー。
type Requester struct {
	UserID  string
	IsAdmin bool
}

// Service は招待台帳のサービス層。
type Service struct {
	repo     repository.InviteRepository
	metrics  metrics.InviteMetrics
	generate func() (string, error)
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsがnilの場合はメトリクスを記録しない。
func NewService(repo repository.InviteRepository, m metrics.InviteMetrics) *Service {
	return &Service{
		repo:     repo,
		metrics:  m,
		generate: GenerateCode,
		now:      time.Now,
	}
}

// CreateInviteCode は creatorID の発行枠を1消費して新しい招待コードを発行する。
// コードが既存と衝突した場合のみ、新しいコードで再試行する。
func (s *Service) CreateInviteCode(ctx context.Context, creatorID string) (*CreateResult, error) {
	if !model.IsValidID(creatorID) {
		return nil, s.fail(model.NewValidationError("ユーザーIDの形式が不正です"))
	}

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("招待コードの生成に失敗しました: %w", err)
		}

		invite := &model.InviteCode{
			ID:        uuid.New().String(),
			Code:      code,
			CreatedBy: creatorID,
			CreatedAt: s.now().UTC(),
		}

		remaining, err := s.repo.CreateWithQuotaDebit(ctx, invite)
		switch {
		case err == nil:
			if s.metrics != nil {
				s.metrics.RecordInviteCreated()
			}
			slog.Info("招待コードを発行しました",
				slog.String("user_id", creatorID),
				slog.String("invite_id", invite.ID),
				slog.Int("available_invites", remaining),
			)
			return &CreateResult{Code: code, AvailableInvites: remaining}, nil
		case errors.Is(err, repository.ErrCodeCollision):
			slog.Warn("招待コードが衝突したため再生成します",
				slog.String("user_id", creatorID),
				slog.Int("attempt", attempt),
			)
			continue
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, s.fail(model.NewUserNotFoundError())
		case errors.Is(err, repository.ErrQuotaExhausted):
			return nil, s.fail(model.NewQuotaExhaustedError())
		default:
			return nil, fmt.Errorf("招待コードの発行に失敗しました: %w", err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordInviteFailure("CODE_COLLISION")
	}
	return nil, fmt.Errorf("招待コードの発行に失敗しました（%d回試行）: %w", maxCreateAttempts, ErrCodeSpaceExhausted)
}

// RedeemInviteCode は招待コードを redeemerID で引き換える。
// 引き換えは1回限りで、並行に引き換えた場合も成功するのは1件だけ。
func (s *Service) RedeemInviteCode(ctx context.Context, code, redeemerID string) (*model.InviteCode, error) {
	code = NormalizeCode(code)
	if err := ValidateCode(code); err != nil {
		return nil, s.fail(model.NewValidationError(err.Error()))
	}
	if !model.IsValidID(redeemerID) {
		return nil, s.fail(model.NewValidationError("ユーザーIDの形式が不正です"))
	}

	redeemed, err := s.repo.Redeem(ctx, code, redeemerID, s.now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrCodeNotFound):
		return nil, s.fail(model.NewInviteNotFoundError(code))
	case errors.Is(err, repository.ErrAlreadyRedeemed):
		return nil, s.fail(model.NewAlreadyRedeemedError(code))
	case errors.Is(err, repository.ErrSelfRedemption):
		return nil, s.fail(model.NewSelfRedemptionError())
	case errors.Is(err, repository.ErrUserNotFound):
		return nil, s.fail(model.NewUserNotFoundError())
	default:
		return nil, fmt.Errorf("招待コードの引き換えに失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordInviteRedeemed()
	}
	slog.Info("招待コードが引き換えられました",
		slog.String("user_id", redeemerID),
		slog.String("creator_id", redeemed.CreatedBy),
		slog.String("invite_id", redeemed.ID),
	)
	return redeemed, nil
}

// ListIssuedCodes は creatorID が発行した招待コードを新しい順に返す。
func (s *Service) ListIssuedCodes(ctx context.Context, creatorID string) ([]*model.InviteCode, error) {
	if !model.IsValidID(creatorID) {
		return nil, s.fail(model.NewValidationError("ユーザーIDの形式が不正です"))
	}
	codes, err := s.repo.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("招待コード一覧の取得に失敗しました: %w", err)
	}
	if codes == nil {
		codes = []*model.InviteCode{}
	}
	return codes, nil
}

// GetAuditTrail は発行・引き換えの監査イベントを新しい順に返す。
// 管理者以外は自分が関わるイベントのみ取得でき、他ユーザーを指定すると権限エラーになる。
func (s *Service) GetAuditTrail(ctx context.Context, requester Requester, filter model.AuditFilter) ([]model.InviteEvent, error) {
	if !requester.IsAdmin {
		if filter.UserID != "" && filter.UserID != requester.UserID {
			return nil, model.NewForbiddenError()
		}
		filter.UserID = requester.UserID
	}

	filter, err := normalizeAuditFilter(filter)
	if err != nil {
		return nil, err
	}

	events, err := s.repo.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("監査ログの取得に失敗しました: %w", err)
	}
	if events == nil {
		events = []model.InviteEvent{}
	}
	return events, nil
}

func normalizeAuditFilter(f model.AuditFilter) (model.AuditFilter, error) {
	if f.UserID != "" && !model.IsValidID(f.UserID) {
		return f, model.NewValidationError("user_id の形式が不正です")
	}
	if f.EventType != "" && !f.EventType.IsValid() {
		return f, model.NewValidationError("event_type は issued または redeemed を指定してください")
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Since.Before(f.Until) {
		return f, model.NewValidationError("since は until より前の日時を指定してください")
	}
	switch {
	case f.Limit == 0:
		f.Limit = DefaultAuditLimit
	case f.Limit < 0 || f.Limit > MaxAuditLimit:
		return f, model.NewValidationError(fmt.Sprintf("limit は1から%dの範囲で指定してください", MaxAuditLimit))
	}
	return f, nil
}

// fail はドメインエラーを失敗理由別に記録して返す。
func (s *Service) fail(apiErr *model.APIError) *model.APIError {
	if s.metrics != nil {
		s.metrics.RecordInviteFailure(apiErr.Code)
	}
	return apiErr
}
