// Package enrich はペルソナ強化ジョブのバックグラウンド実行を提供する。
// pending のペルソナを確保して processing に遷移させ、強化処理の結果を
// completed / failed として書き戻す。
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/advisorhub/internal/enrichment"
	"github.com/hitoshi/advisorhub/internal/metrics"
	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/repository"
)

// Enricher はペルソナ1件分の強化処理インターフェース。
type Enricher interface {
	Enrich(ctx context.Context, p *model.Persona) (model.EnrichmentResult, error)
}

// JobStore は強化ジョブの状態遷移に必要な永続化インターフェース。
type JobStore interface {
	ClaimPending(ctx context.Context, limit int, now time.Time) ([]*model.Persona, error)
	MarkCompleted(ctx context.Context, claimed *model.Persona, result model.EnrichmentResult, now time.Time) error
	MarkFailed(ctx context.Context, claimed *model.Persona, reason string, now time.Time) error
	ResetStale(ctx context.Context, startedBefore time.Time, maxAttempts int) (requeued, failed int64, err error)
}

// Options はSchedulerの動作設定。
type Options struct {
	MaxConcurrency int
	// Timeout は1件あたりの強化処理の制限時間。
	Timeout time.Duration
	// StaleAfter を超えて processing のままの行はワーカー停止とみなして回収する。
	StaleAfter  time.Duration
	MaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 10 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	return o
}

// Scheduler は強化ジョブのスケジューリングと並列制御を行う。
type Scheduler struct {
	store    JobStore
	enricher Enricher
	metrics  metrics.EnrichmentMetrics
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// metricsがnilの場合はメトリクスを記録しない。
func NewScheduler(store JobStore, enricher Enricher, m metrics.EnrichmentMetrics, logger *slog.Logger, opts Options) *Scheduler {
	return &Scheduler{
		store:    store,
		enricher: enricher,
		metrics:  m,
		logger:   logger,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// Start は interval ごとに RunOnce を実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("強化スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.opts.MaxConcurrency),
	)

	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("強化スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("強化サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は停止したジョブを回収した後、pending のペルソナを確保して並列に強化する。
// 確保件数は最大並列数までに制限し、確保したまま待たせる行を作らない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.now()

	requeued, failed, err := s.store.ResetStale(ctx, start.Add(-s.opts.StaleAfter), s.opts.MaxAttempts)
	if err != nil {
		return err
	}
	if requeued > 0 || failed > 0 {
		s.logger.Warn("停止した強化ジョブを回収しました",
			slog.Int64("requeued", requeued),
			slog.Int64("failed", failed),
		)
		if s.metrics != nil {
			for i := int64(0); i < failed; i++ {
				s.metrics.RecordEnrichmentRun(outcomeStale, 0)
			}
		}
	}

	claimed, err := s.store.ClaimPending(ctx, s.opts.MaxConcurrency, start)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		s.logger.Debug("強化対象のペルソナはありません")
		return nil
	}

	s.logger.Info("強化サイクルを開始します",
		slog.Int("persona_count", len(claimed)),
	)

	sem := make(chan struct{}, s.opts.MaxConcurrency)
	var wg sync.WaitGroup

	for _, p := range claimed {
		wg.Add(1)
		sem <- struct{}{}

		go func(p *model.Persona) {
			defer wg.Done()
			defer func() { <-sem }()
			s.process(ctx, p)
		}(p)
	}

	wg.Wait()

	s.logger.Info("強化サイクルが完了しました",
		slog.Int("persona_count", len(claimed)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// process は確保済みのペルソナ1件を強化し、結果を書き戻す。
// 終端状態へ遷移できない状態（processing 以外）の行は強化も書き戻しもしない。
func (s *Scheduler) process(ctx context.Context, p *model.Persona) {
	if !enrichment.CanTransition(p.EnrichmentStatus, model.EnrichmentCompleted) ||
		!enrichment.CanTransition(p.EnrichmentStatus, model.EnrichmentFailed) {
		s.logger.Error("確保状態ではないペルソナを受け取ったため強化しません",
			slog.String("persona_id", p.ID),
			slog.String("status", string(p.EnrichmentStatus)),
		)
		if s.metrics != nil {
			s.metrics.RecordEnrichmentRun(outcomeRejected, 0)
		}
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	result, runErr := s.enricher.Enrich(runCtx, p)
	duration := time.Since(start)

	// 書き戻しは処理の制限時間と切り離して行う
	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer writeCancel()

	outcome := outcomeCompleted
	var err error
	if runErr != nil {
		outcome = outcomeFailed
		reason := FailureReason(runErr)
		s.logger.Warn("ペルソナの強化に失敗しました",
			slog.String("persona_id", p.ID),
			slog.String("user_id", p.UserID),
			slog.Int("attempt", p.EnrichmentAttempts),
			slog.String("error", runErr.Error()),
		)
		err = s.store.MarkFailed(writeCtx, p, reason, s.now())
	} else {
		err = s.store.MarkCompleted(writeCtx, p, result, s.now())
	}

	switch {
	case errors.Is(err, repository.ErrClaimLost):
		// 実行中にペルソナが更新されたため、この結果は破棄する
		outcome = outcomeSuperseded
		s.logger.Info("ペルソナが更新されたため強化結果を破棄しました",
			slog.String("persona_id", p.ID),
		)
	case err != nil:
		outcome = outcomeError
		s.logger.Error("強化結果の保存に失敗しました",
			slog.String("persona_id", p.ID),
			slog.String("error", err.Error()),
		)
	case runErr == nil:
		s.logger.Info("ペルソナの強化が完了しました",
			slog.String("persona_id", p.ID),
			slog.String("user_id", p.UserID),
			slog.String("level", string(result.Level)),
			slog.Int("completeness", result.Completeness),
		)
	}

	if s.metrics != nil {
		s.metrics.RecordEnrichmentRun(outcome, duration)
	}
}
