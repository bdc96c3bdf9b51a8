// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/advisorhub/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// 同じidentityが既に存在する場合は ErrDuplicateIdentity を返す。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// Withdraw はユーザーを退会させる。
	// 招待台帳に履歴があるユーザーは匿名化し、それ以外は削除する。
	// 匿名化した場合は true を返す。
	Withdraw(ctx context.Context, id string) (anonymized bool, err error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は before 以前に期限切れとなったセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// InviteRepository は招待コード台帳の永続化インターフェース。
// 発行枠の消費と引き換えはいずれも単一の条件付き更新で行い、並行実行でも不変条件を保つ。
type InviteRepository interface {
	// CreateWithQuotaDebit は発行者の発行枠を1減らし、招待コードを挿入する。
	// 両方を同一トランザクションで行い、残り枠を返す。
	// 発行者がいなければ ErrUserNotFound、枠が0なら ErrQuotaExhausted、
	// コードが既存と衝突した場合はロールバックして ErrCodeCollision を返す。
	CreateWithQuotaDebit(ctx context.Context, code *model.InviteCode) (remaining int, err error)

	// Redeem は未使用のコードを redeemerID で引き換える。
	// 失敗時は ErrCodeNotFound / ErrAlreadyRedeemed / ErrSelfRedemption を返す。
	Redeem(ctx context.Context, code, redeemerID string, usedAt time.Time) (*model.InviteCode, error)

	// FindByCode はコード文字列で招待コードを取得する。見つからない場合はnilを返す。
	FindByCode(ctx context.Context, code string) (*model.InviteCode, error)

	// ListByCreator は発行者の招待コードを新しい順に返す。
	ListByCreator(ctx context.Context, creatorID string) ([]*model.InviteCode, error)

	// ListEvents は招待コードの行から導出した監査イベントを新しい順に返す。
	ListEvents(ctx context.Context, filter model.AuditFilter) ([]model.InviteEvent, error)
}

// PersonaRepository はペルソナと強化ジョブ状態の永続化インターフェース。
type PersonaRepository interface {
	// FindByUserID はユーザーのペルソナを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Persona, error)

	// Upsert はペルソナを作成または更新し、強化ジョブを pending に戻す。
	// 保存後の行で persona を上書きする。
	Upsert(ctx context.Context, persona *model.Persona) error

	// RequestEnrichment は終端状態のペルソナを pending に戻す。
	// ペルソナがなければ ErrPersonaNotFound、実行中なら ErrEnrichmentInFlight を返す。
	RequestEnrichment(ctx context.Context, userID string) (*model.Persona, error)

	// ClaimPending は pending のペルソナを最大limit件 FOR UPDATE SKIP LOCKED で確保し、
	// processing に遷移させて返す。
	ClaimPending(ctx context.Context, limit int, now time.Time) ([]*model.Persona, error)

	// MarkCompleted は確保済みのペルソナを completed にする。
	// 確保後に状態が変わっていた場合は ErrClaimLost を返す。
	MarkCompleted(ctx context.Context, claimed *model.Persona, result model.EnrichmentResult, now time.Time) error

	// MarkFailed は確保済みのペルソナを failed にする。
	// 確保後に状態が変わっていた場合は ErrClaimLost を返す。
	MarkFailed(ctx context.Context, claimed *model.Persona, reason string, now time.Time) error

	// ResetStale は startedBefore より前から processing のままの行を回収する。
	// 試行回数が maxAttempts 未満なら pending に、それ以外は failed にする。
	ResetStale(ctx context.Context, startedBefore time.Time, maxAttempts int) (requeued, failed int64, err error)
}
