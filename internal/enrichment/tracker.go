package enrichment

import (
	"context"
	"fmt"

	"github.com/hitoshi/advisorhub/internal/metrics"
	"github.com/hitoshi/advisorhub/internal/model"
)

// PersonaReader はペルソナの読み取りインターフェース。
type PersonaReader interface {
	FindByUserID(ctx context.Context, userID string) (*model.Persona, error)
}

// Tracker は強化ジョブの状態を読み取り専用で提供する。
// 毎回ストアを読み直し、キャッシュや書き込みは行わない。
type Tracker struct {
	personas PersonaReader
	metrics  metrics.EnrichmentMetrics
}

// NewTracker はTrackerの新しいインスタンスを生成する。
// metricsがnilの場合はメトリクスを記録しない。
func NewTracker(personas PersonaReader, m metrics.EnrichmentMetrics) *Tracker {
	return &Tracker{personas: personas, metrics: m}
}

// GetStatus はユーザーの強化ジョブ状態を返す。
// ペルソナが未作成（ユーザーが存在しない場合を含む）なら no_persona を返し、エラーにはしない。
func (t *Tracker) GetStatus(ctx context.Context, userID string) (*model.EnrichmentStatus, error) {
	if !model.IsValidID(userID) {
		return nil, model.NewValidationError("ユーザーIDの形式が不正です")
	}

	persona, err := t.personas.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("強化状態の取得に失敗しました: %w", err)
	}

	status := StatusOf(persona)
	if t.metrics != nil {
		t.metrics.RecordStatusPoll(string(status.Status))
	}
	return status, nil
}

// StatusOf はペルソナからエンリッチメント状態の投影を作る。pがnilならno_persona。
func StatusOf(p *model.Persona) *model.EnrichmentStatus {
	if p == nil {
		return &model.EnrichmentStatus{Status: model.EnrichmentNoPersona}
	}

	id := p.ID
	updatedAt := p.UpdatedAt
	return &model.EnrichmentStatus{
		Status:       p.EnrichmentStatus,
		PersonaID:    &id,
		Level:        p.EnrichmentLevel,
		Completeness: p.Completeness,
		UpdatedAt:    &updatedAt,
	}
}
