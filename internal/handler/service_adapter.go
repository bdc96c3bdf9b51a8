package handler

import (
	"context"

	"github.com/hitoshi/advisorhub/internal/invite"
	"github.com/hitoshi/advisorhub/internal/model"
)

// AdminChecker はユーザーが管理者かどうかを判定する。user.Service が満たす。
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// AuditTrailSource は権限解決済みの要求者で監査ログを返す。invite.Service が満たす。
type AuditTrailSource interface {
	GetAuditTrail(ctx context.Context, requester invite.Requester, filter model.AuditFilter) ([]model.InviteEvent, error)
}

// AuditTrailAdapter は invite.Service と管理者判定を組み合わせて
// AuditTrailServiceInterface に適合させるアダプタ。
type AuditTrailAdapter struct {
	invites AuditTrailSource
	admins  AdminChecker
}

// NewAuditTrailAdapter はAuditTrailAdapterを生成する。
func NewAuditTrailAdapter(invites AuditTrailSource, admins AdminChecker) *AuditTrailAdapter {
	return &AuditTrailAdapter{invites: invites, admins: admins}
}

// GetAuditTrail は要求者の権限を解決してから監査ログを取得する。
func (a *AuditTrailAdapter) GetAuditTrail(ctx context.Context, requesterID string, filter model.AuditFilter) ([]model.InviteEvent, error) {
	isAdmin, err := a.admins.IsAdmin(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	return a.invites.GetAuditTrail(ctx, invite.Requester{UserID: requesterID, IsAdmin: isAdmin}, filter)
}

// --- compile-time interface checks ---

var _ AuditTrailServiceInterface = (*AuditTrailAdapter)(nil)
var _ InviteServiceInterface = (*invite.Service)(nil)
var _ AuditTrailSource = (*invite.Service)(nil)
