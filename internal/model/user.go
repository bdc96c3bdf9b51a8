// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultInviteQuota は新規ユーザーに付与される招待コード発行枠のデフォルト値。
const DefaultInviteQuota = 5

// User はサービス利用ユーザーを表す。
// AvailableInvites は招待コード発行の残り枠で、0未満にはならない。
type User struct {
	ID               string
	Email            string
	Name             string
	AvailableInvites int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsValidID はIDが正規形式（ハイフン区切り36文字）のUUIDかどうかを判定する。
func IsValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
