package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/advisorhub/internal/model"
)

// DefaultPollInterval はクライアントが状態を問い合わせる既定の間隔。
const DefaultPollInterval = 5 * time.Second

// StatusGetter は強化ジョブ状態の取得元。Tracker と Client の両方が満たす。
type StatusGetter interface {
	GetStatus(ctx context.Context, userID string) (*model.EnrichmentStatus, error)
}

// Poll は状態を一定間隔で取得し、ポーリング不要な状態に達したらそれを返す。
// 状態が変わるたびに onChange を呼ぶ（nil可）。
// 初回は即座に取得し、以降は interval ごとに取得する。
func Poll(ctx context.Context, getter StatusGetter, userID string, interval time.Duration, onChange func(*model.EnrichmentStatus)) (*model.EnrichmentStatus, error) {
	if interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	var last model.EnrichmentState
	observe := func() (*model.EnrichmentStatus, bool, error) {
		status, err := getter.GetStatus(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		if status.Status != last {
			last = status.Status
			if onChange != nil {
				onChange(status)
			}
		}
		return status, !ShouldPoll(status.Status), nil
	}

	status, done, err := observe()
	if err != nil || done {
		return status, err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
			next, done, err := observe()
			if err != nil {
				return status, err
			}
			status = next
			if done {
				return status, nil
			}
		}
	}
}
