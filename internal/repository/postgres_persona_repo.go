package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/advisorhub/internal/model"
)

// PostgresPersonaRepo はPostgreSQLを使用したペルソナリポジトリ。
// 強化ジョブの状態遷移はすべて現在の状態を条件にした UPDATE で行う。
type PostgresPersonaRepo struct {
	db *sql.DB
}

// NewPostgresPersonaRepo はPostgresPersonaRepoを生成する。
func NewPostgresPersonaRepo(db *sql.DB) *PostgresPersonaRepo {
	return &PostgresPersonaRepo{db: db}
}

const personaColumns = `id, user_id, business_name, industry, audience, goals, website_url,
	enrichment_status, enrichment_level, completeness, enrichment_error, enrichment_attempts,
	enrichment_started_at, enrichment_finished_at, created_at, updated_at`

// FindByUserID はユーザーのペルソナを取得する。見つからない場合はnilを返す。
func (r *PostgresPersonaRepo) FindByUserID(ctx context.Context, userID string) (*model.Persona, error) {
	persona, err := scanPersona(r.db.QueryRowContext(ctx,
		`SELECT `+personaColumns+` FROM personas WHERE user_id = $1`,
		userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ペルソナの取得に失敗しました: %w", err)
	}
	return persona, nil
}

// Upsert はペルソナを作成または更新する。
// 作成・更新のいずれでも強化ジョブは新しいサイクルとして pending に戻り、
// 前回の結果（レベル・完成度・エラー・試行回数）はクリアされる。
func (r *PostgresPersonaRepo) Upsert(ctx context.Context, persona *model.Persona) error {
	saved, err := scanPersona(r.db.QueryRowContext(ctx,
		`INSERT INTO personas (id, user_id, business_name, industry, audience, goals, website_url,
		                       enrichment_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $8)
		 ON CONFLICT (user_id) DO UPDATE SET
		     business_name = EXCLUDED.business_name,
		     industry = EXCLUDED.industry,
		     audience = EXCLUDED.audience,
		     goals = EXCLUDED.goals,
		     website_url = EXCLUDED.website_url,
		     enrichment_status = 'pending',
		     enrichment_level = NULL,
		     completeness = NULL,
		     enrichment_error = '',
		     enrichment_attempts = 0,
		     enrichment_started_at = NULL,
		     enrichment_finished_at = NULL,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+personaColumns,
		persona.ID, persona.UserID, persona.BusinessName, persona.Industry,
		persona.Audience, persona.Goals, persona.WebsiteURL, persona.UpdatedAt,
	))
	if isForeignKeyViolation(err) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("ペルソナの保存に失敗しました: %w", err)
	}
	*persona = *saved
	return nil
}

// RequestEnrichment は completed / failed のペルソナを pending に戻す。
func (r *PostgresPersonaRepo) RequestEnrichment(ctx context.Context, userID string) (*model.Persona, error) {
	persona, err := scanPersona(r.db.QueryRowContext(ctx,
		`UPDATE personas SET
		     enrichment_status = 'pending',
		     enrichment_error = '',
		     enrichment_attempts = 0,
		     enrichment_started_at = NULL,
		     enrichment_finished_at = NULL,
		     enrichment_level = NULL,
		     completeness = NULL,
		     updated_at = now()
		 WHERE user_id = $1 AND enrichment_status IN ('completed', 'failed')
		 RETURNING `+personaColumns,
		userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		current, findErr := r.FindByUserID(ctx, userID)
		if findErr != nil {
			return nil, findErr
		}
		if current == nil {
			return nil, ErrPersonaNotFound
		}
		return nil, ErrEnrichmentInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("強化ジョブの再要求に失敗しました: %w", err)
	}
	return persona, nil
}

// ClaimPending は pending のペルソナを古い順に最大limit件確保し processing にする。
// 複数ワーカーが同時に実行しても FOR UPDATE SKIP LOCKED により同じ行は確保されない。
func (r *PostgresPersonaRepo) ClaimPending(ctx context.Context, limit int, now time.Time) ([]*model.Persona, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE personas SET
		     enrichment_status = 'processing',
		     enrichment_attempts = enrichment_attempts + 1,
		     enrichment_started_at = $2,
		     updated_at = $2
		 WHERE id IN (
		     SELECT id FROM personas
		     WHERE enrichment_status = 'pending'
		     ORDER BY updated_at ASC
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+personaColumns,
		limit, now,
	)
	if err != nil {
		return nil, fmt.Errorf("強化対象ペルソナの確保に失敗しました: %w", err)
	}
	defer rows.Close()

	var claimed []*model.Persona
	for rows.Next() {
		persona, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("強化対象ペルソナの読み取りに失敗しました: %w", err)
		}
		claimed = append(claimed, persona)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("強化対象ペルソナの走査に失敗しました: %w", err)
	}
	return claimed, nil
}

// MarkCompleted は確保済みのペルソナを completed にする。
func (r *PostgresPersonaRepo) MarkCompleted(ctx context.Context, claimed *model.Persona, result model.EnrichmentResult, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE personas SET
		     enrichment_status = 'completed',
		     enrichment_level = $3,
		     completeness = $4,
		     enrichment_error = '',
		     enrichment_finished_at = $5,
		     updated_at = $5
		 WHERE id = $1 AND enrichment_status = 'processing' AND enrichment_started_at = $2`,
		claimed.ID, claimed.EnrichmentStartedAt, string(result.Level), result.Completeness, now,
	)
	if err != nil {
		return fmt.Errorf("強化結果の保存に失敗しました: %w", err)
	}
	return requireClaimHeld(res)
}

// MarkFailed は確保済みのペルソナを failed にする。
func (r *PostgresPersonaRepo) MarkFailed(ctx context.Context, claimed *model.Persona, reason string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE personas SET
		     enrichment_status = 'failed',
		     enrichment_error = $3,
		     enrichment_finished_at = $4,
		     updated_at = $4
		 WHERE id = $1 AND enrichment_status = 'processing' AND enrichment_started_at = $2`,
		claimed.ID, claimed.EnrichmentStartedAt, reason, now,
	)
	if err != nil {
		return fmt.Errorf("強化失敗の保存に失敗しました: %w", err)
	}
	return requireClaimHeld(res)
}

// ResetStale は startedBefore より前に確保されたまま processing の行を回収する。
func (r *PostgresPersonaRepo) ResetStale(ctx context.Context, startedBefore time.Time, maxAttempts int) (int64, int64, error) {
	failedRes, err := r.db.ExecContext(ctx,
		`UPDATE personas SET
		     enrichment_status = 'failed',
		     enrichment_error = 'enrichment timed out',
		     enrichment_finished_at = now(),
		     updated_at = now()
		 WHERE enrichment_status = 'processing'
		   AND enrichment_started_at < $1
		   AND enrichment_attempts >= $2`,
		startedBefore, maxAttempts,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("停滞ジョブの失敗処理に失敗しました: %w", err)
	}
	failed, err := failedRes.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	requeuedRes, err := r.db.ExecContext(ctx,
		`UPDATE personas SET
		     enrichment_status = 'pending',
		     enrichment_started_at = NULL,
		     updated_at = now()
		 WHERE enrichment_status = 'processing'
		   AND enrichment_started_at < $1
		   AND enrichment_attempts < $2`,
		startedBefore, maxAttempts,
	)
	if err != nil {
		return 0, failed, fmt.Errorf("停滞ジョブの再キューに失敗しました: %w", err)
	}
	requeued, err := requeuedRes.RowsAffected()
	if err != nil {
		return 0, failed, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return requeued, failed, nil
}

func requireClaimHeld(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrClaimLost
	}
	return nil
}

func scanPersona(row rowScanner) (*model.Persona, error) {
	p := &model.Persona{}
	var (
		status     string
		level      sql.NullString
		complete   sql.NullInt64
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	if err := row.Scan(
		&p.ID, &p.UserID, &p.BusinessName, &p.Industry, &p.Audience, &p.Goals, &p.WebsiteURL,
		&status, &level, &complete, &p.EnrichmentError, &p.EnrichmentAttempts,
		&startedAt, &finishedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.EnrichmentStatus = model.EnrichmentState(status)
	if level.Valid {
		l := model.EnrichmentLevel(level.String)
		p.EnrichmentLevel = &l
	}
	if complete.Valid {
		c := int(complete.Int64)
		p.Completeness = &c
	}
	if startedAt.Valid {
		p.EnrichmentStartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		p.EnrichmentFinishedAt = &finishedAt.Time
	}
	return p, nil
}

// compile-time interface check
var _ PersonaRepository = (*PostgresPersonaRepo)(nil)
