package model

import "time"

// InviteCode は1回だけ使用できる招待コードを表す。
// UsedBy と UsedAt は未使用の間は両方nilで、引き換え時に1度だけ同時に設定される。
type InviteCode struct {
	ID        string
	Code      string
	CreatedBy string
	UsedBy    *string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsRedeemed は招待コードが引き換え済みかどうかを返す。
func (c *InviteCode) IsRedeemed() bool {
	return c.UsedBy != nil
}

// InviteEventType は監査ログイベントの種別を表す。
type InviteEventType string

const (
	// InviteEventIssued は招待コードの発行イベント。
	InviteEventIssued InviteEventType = "issued"
	// InviteEventRedeemed は招待コードの引き換えイベント。
	InviteEventRedeemed InviteEventType = "redeemed"
)

// IsValid はイベント種別が定義済みの値かどうかを返す。
func (t InviteEventType) IsValid() bool {
	switch t {
	case InviteEventIssued, InviteEventRedeemed:
		return true
	default:
		return false
	}
}

// InviteEvent は招待コードの発行・引き換えの監査ログ1件を表す。
// invite_codes の行から導出され、独立したテーブルは持たない。
type InviteEvent struct {
	Type       InviteEventType
	Code       string
	ActorID    string // issued: 発行者, redeemed: 引き換えたユーザー
	CreatorID  string
	OccurredAt time.Time
}

// AuditFilter は監査ログ取得の絞り込み条件。
// ゼロ値のフィールドは条件に含めない。
type AuditFilter struct {
	UserID    string // 発行者または引き換えユーザーのいずれかに一致
	EventType InviteEventType
	Since     time.Time
	Until     time.Time
	Limit     int
}
