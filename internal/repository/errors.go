package repository

import (
	"errors"

	"github.com/lib/pq"
)

// リポジトリ層で判別可能な失敗を表すセンチネルエラー。
// サービス層で errors.Is により判別し、model.APIError に変換する。
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrCodeNotFound       = errors.New("invite code not found")
	ErrQuotaExhausted     = errors.New("invite quota exhausted")
	ErrAlreadyRedeemed    = errors.New("invite code already redeemed")
	ErrSelfRedemption     = errors.New("invite code redeemed by its creator")
	ErrCodeCollision      = errors.New("invite code collision")
	ErrDuplicateIdentity  = errors.New("identity already exists")
	ErrPersonaNotFound    = errors.New("persona not found")
	ErrEnrichmentInFlight = errors.New("enrichment already in flight")
	ErrClaimLost          = errors.New("enrichment claim no longer held")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// isUniqueViolation はPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// isForeignKeyViolation はPostgreSQLの外部キー制約違反かどうかを判定する。
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}
