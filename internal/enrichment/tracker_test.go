package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/advisorhub/internal/model"
)

const testUserID = "11111111-2222-3333-4444-555555555555"

// --- モック定義 ---

type mockPersonaReader struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.Persona, error)
	calls          int
}

func (m *mockPersonaReader) FindByUserID(ctx context.Context, userID string) (*model.Persona, error) {
	m.calls++
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}

type mockEnrichmentMetrics struct {
	polls []string
	runs  []string
}

func (m *mockEnrichmentMetrics) RecordEnrichmentRun(outcome string, _ time.Duration) {
	m.runs = append(m.runs, outcome)
}

func (m *mockEnrichmentMetrics) RecordStatusPoll(status string) {
	m.polls = append(m.polls, status)
}

func intPtr(v int) *int { return &v }

func levelPtr(l model.EnrichmentLevel) *model.EnrichmentLevel { return &l }

// --- GetStatus のテスト ---

// TestGetStatus_NoPersona はペルソナが存在しない場合にno_personaを返すことをテストする。
func TestGetStatus_NoPersona(t *testing.T) {
	reader := &mockPersonaReader{}
	m := &mockEnrichmentMetrics{}
	tracker := NewTracker(reader, m)

	status, err := tracker.GetStatus(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != model.EnrichmentNoPersona {
		t.Errorf("Status = %s, want no_persona", status.Status)
	}
	if status.PersonaID != nil || status.Level != nil || status.Completeness != nil || status.UpdatedAt != nil {
		t.Errorf("no_persona では他のフィールドはnilであるべき: %+v", status)
	}
	if len(m.polls) != 1 || m.polls[0] != "no_persona" {
		t.Errorf("polls = %v, want [no_persona]", m.polls)
	}
}

// TestGetStatus_ReturnsPersonaState はペルソナの状態をそのまま射影して返すことをテストする。
func TestGetStatus_ReturnsPersonaState(t *testing.T) {
	updated := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	reader := &mockPersonaReader{
		findByUserIDFn: func(_ context.Context, userID string) (*model.Persona, error) {
			return &model.Persona{
				ID:               "persona-1",
				UserID:           userID,
				EnrichmentStatus: model.EnrichmentCompleted,
				EnrichmentLevel:  levelPtr(model.EnrichmentLevelStrategic),
				Completeness:     intPtr(80),
				UpdatedAt:        updated,
			}, nil
		},
	}
	tracker := NewTracker(reader, nil)

	status, err := tracker.GetStatus(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != model.EnrichmentCompleted {
		t.Errorf("Status = %s, want completed", status.Status)
	}
	if status.PersonaID == nil || *status.PersonaID != "persona-1" {
		t.Errorf("PersonaID = %v, want persona-1", status.PersonaID)
	}
	if status.Level == nil || *status.Level != model.EnrichmentLevelStrategic {
		t.Errorf("Level = %v, want strategic", status.Level)
	}
	if status.Completeness == nil || *status.Completeness != 80 {
		t.Errorf("Completeness = %v, want 80", status.Completeness)
	}
	if status.UpdatedAt == nil || !status.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", status.UpdatedAt, updated)
	}
}

// TestGetStatus_InvalidUserID は不正なユーザーIDでストアを読まずにバリデーションエラーを返すことをテストする。
func TestGetStatus_InvalidUserID(t *testing.T) {
	reader := &mockPersonaReader{}
	tracker := NewTracker(reader, nil)

	for _, id := range []string{"", "not-a-uuid", testUserID + "0"} {
		_, err := tracker.GetStatus(context.Background(), id)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
			t.Errorf("GetStatus(%q) error = %v, want VALIDATION_ERROR", id, err)
		}
	}
	if reader.calls != 0 {
		t.Errorf("不正なIDではストアを読まないべき: calls = %d", reader.calls)
	}
}

// TestGetStatus_StoreError はストアのエラーをラップして返すことをテストする。
func TestGetStatus_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	reader := &mockPersonaReader{
		findByUserIDFn: func(context.Context, string) (*model.Persona, error) {
			return nil, storeErr
		},
	}
	m := &mockEnrichmentMetrics{}
	tracker := NewTracker(reader, m)

	_, err := tracker.GetStatus(context.Background(), testUserID)
	if !errors.Is(err, storeErr) {
		t.Errorf("error = %v, want wrapped %v", err, storeErr)
	}
	if len(m.polls) != 0 {
		t.Errorf("失敗時はポーリング数を記録しないべき: %v", m.polls)
	}
}

// TestGetStatus_Idempotent は同じ状態に対する繰り返し呼び出しが同じ結果を返すことをテストする。
func TestGetStatus_Idempotent(t *testing.T) {
	reader := &mockPersonaReader{
		findByUserIDFn: func(context.Context, string) (*model.Persona, error) {
			return &model.Persona{ID: "p", EnrichmentStatus: model.EnrichmentPending}, nil
		},
	}
	tracker := NewTracker(reader, nil)

	first, err := tracker.GetStatus(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := tracker.GetStatus(context.Background(), testUserID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.Status != first.Status || *again.PersonaID != *first.PersonaID {
			t.Errorf("呼び出し %d 回目の結果が異なる: %+v vs %+v", i+2, again, first)
		}
	}
	if reader.calls != 4 {
		t.Errorf("毎回ストアを読むべき: calls = %d, want 4", reader.calls)
	}
}
