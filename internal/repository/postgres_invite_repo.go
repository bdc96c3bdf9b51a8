package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/advisorhub/internal/model"
)

// PostgresInviteRepo はPostgreSQLを使用した招待コード台帳リポジトリ。
type PostgresInviteRepo struct {
	db *sql.DB
}

// NewPostgresInviteRepo はPostgresInviteRepoを生成する。
func NewPostgresInviteRepo(db *sql.DB) *PostgresInviteRepo {
	return &PostgresInviteRepo{db: db}
}

const inviteColumns = `id, code, created_by, used_by, used_at, created_at`

// CreateWithQuotaDebit は発行枠の消費とコードの挿入を同一トランザクションで行う。
// 発行枠の減算は available_invites > 0 を条件とした UPDATE で行い、
// 行ロックにより同一ユーザーの並行発行は直列化される。
func (r *PostgresInviteRepo) CreateWithQuotaDebit(ctx context.Context, code *model.InviteCode) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var remaining int
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET available_invites = available_invites - 1, updated_at = now()
		 WHERE id = $1 AND available_invites > 0
		 RETURNING available_invites`,
		code.CreatedBy,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
			code.CreatedBy,
		).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to look up invite creator: %w", err)
		}
		if !exists {
			return 0, ErrUserNotFound
		}
		return 0, ErrQuotaExhausted
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit invite quota: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO invite_codes (id, code, created_by, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (code) DO NOTHING`,
		code.ID, code.Code, code.CreatedBy, code.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert invite code: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if inserted == 0 {
		// ロールバックにより減算した枠も戻る
		return 0, ErrCodeCollision
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return remaining, nil
}

// Redeem は used_by IS NULL を条件とした比較交換でコードを引き換える。
// 更新されなかった場合は現在の行を読み直して失敗理由を判別する。
func (r *PostgresInviteRepo) Redeem(ctx context.Context, code, redeemerID string, usedAt time.Time) (*model.InviteCode, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE invite_codes SET used_by = $2, used_at = $3
		 WHERE code = $1 AND used_by IS NULL AND created_by <> $2
		 RETURNING `+inviteColumns,
		code, redeemerID, usedAt,
	)
	invite, err := scanInviteCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyRedeemFailure(ctx, code, redeemerID)
	}
	if isForeignKeyViolation(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to redeem invite code: %w", err)
	}
	return invite, nil
}

func (r *PostgresInviteRepo) classifyRedeemFailure(ctx context.Context, code, redeemerID string) error {
	current, err := r.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	switch {
	case current == nil:
		return ErrCodeNotFound
	case current.IsRedeemed():
		return ErrAlreadyRedeemed
	case current.CreatedBy == redeemerID:
		return ErrSelfRedemption
	default:
		// used_by は一度設定されると戻らないため、ここには到達しない
		return ErrAlreadyRedeemed
	}
}

// FindByCode はコード文字列で招待コードを取得する。見つからない場合はnilを返す。
func (r *PostgresInviteRepo) FindByCode(ctx context.Context, code string) (*model.InviteCode, error) {
	invite, err := scanInviteCode(r.db.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM invite_codes WHERE code = $1`,
		code,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invite code: %w", err)
	}
	return invite, nil
}

// ListByCreator は発行者の招待コードを新しい順に返す。
func (r *PostgresInviteRepo) ListByCreator(ctx context.Context, creatorID string) ([]*model.InviteCode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+inviteColumns+` FROM invite_codes
		 WHERE created_by = $1
		 ORDER BY created_at DESC, code ASC`,
		creatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invite codes: %w", err)
	}
	defer rows.Close()

	var invites []*model.InviteCode
	for rows.Next() {
		invite, err := scanInviteCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite code: %w", err)
		}
		invites = append(invites, invite)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invite codes: %w", err)
	}
	return invites, nil
}

// ListEvents は発行イベント（全行）と引き換えイベント（使用済みの行）を
// UNION ALL で展開し、フィルタを適用して新しい順に返す。
func (r *PostgresInviteRepo) ListEvents(ctx context.Context, filter model.AuditFilter) ([]model.InviteEvent, error) {
	var (
		conds []string
		args  []any
	)
	addArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		p := addArg(filter.UserID)
		conds = append(conds, fmt.Sprintf("(e.actor_id = %s OR e.creator_id = %s)", p, p))
	}
	if filter.EventType != "" {
		conds = append(conds, "e.event_type = "+addArg(string(filter.EventType)))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "e.occurred_at >= "+addArg(filter.Since))
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "e.occurred_at < "+addArg(filter.Until))
	}

	query := `SELECT e.event_type, e.code, e.actor_id, e.creator_id, e.occurred_at
		 FROM (
		     SELECT 'issued' AS event_type, code, created_by AS actor_id, created_by AS creator_id, created_at AS occurred_at
		     FROM invite_codes
		     UNION ALL
		     SELECT 'redeemed', code, used_by, created_by, used_at
		     FROM invite_codes
		     WHERE used_by IS NOT NULL
		 ) e`
	if len(conds) > 0 {
		query += "\n\t\t WHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\t ORDER BY e.occurred_at DESC, e.code ASC, e.event_type DESC"
	if filter.Limit > 0 {
		query += "\n\t\t LIMIT " + addArg(filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invite events: %w", err)
	}
	defer rows.Close()

	events := []model.InviteEvent{}
	for rows.Next() {
		var ev model.InviteEvent
		var eventType string
		if err := rows.Scan(&eventType, &ev.Code, &ev.ActorID, &ev.CreatorID, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan invite event: %w", err)
		}
		ev.Type = model.InviteEventType(eventType)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invite events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInviteCode(row rowScanner) (*model.InviteCode, error) {
	invite := &model.InviteCode{}
	var usedBy sql.NullString
	var usedAt sql.NullTime
	if err := row.Scan(&invite.ID, &invite.Code, &invite.CreatedBy, &usedBy, &usedAt, &invite.CreatedAt); err != nil {
		return nil, err
	}
	if usedBy.Valid {
		invite.UsedBy = &usedBy.String
	}
	if usedAt.Valid {
		invite.UsedAt = &usedAt.Time
	}
	return invite, nil
}

// compile-time interface check
var _ InviteRepository = (*PostgresInviteRepo)(nil)
