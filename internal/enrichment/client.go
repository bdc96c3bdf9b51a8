package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/advisorhub/internal/model"
)

// StatusPath は強化ジョブ状態APIのパス。
const StatusPath = "/api/persona/enrichment-status"

// Client はHTTP API経由で強化ジョブ状態を取得するクライアント。
// 状態APIはアクセストークンの持ち主の状態だけを返すため、GetStatus の userID は使わない。
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientがnilの場合は10秒タイムアウトのクライアントを使用する。
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// statusResponse は状態APIのレスポンスボディ。
type statusResponse struct {
	Status       string     `json:"status"`
	PersonaID    *string    `json:"persona_id"`
	Level        *string    `json:"level"`
	Completeness *int       `json:"completeness"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetStatus は状態APIを1回呼び出す。
func (c *Client) GetStatus(ctx context.Context, _ string) (*model.EnrichmentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+StatusPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return nil, fmt.Errorf("status request returned %d: [%s] %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return nil, fmt.Errorf("status request returned %d", resp.StatusCode)
	}

	var sr statusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	status := &model.EnrichmentStatus{
		Status:       model.EnrichmentState(sr.Status),
		PersonaID:    sr.PersonaID,
		Completeness: sr.Completeness,
		UpdatedAt:    sr.UpdatedAt,
	}
	if sr.Level != nil {
		level := model.EnrichmentLevel(*sr.Level)
		status.Level = &level
	}
	if !knownState(status.Status) {
		return nil, fmt.Errorf("unknown enrichment status %q", sr.Status)
	}
	return status, nil
}

func knownState(s model.EnrichmentState) bool {
	switch s {
	case model.EnrichmentNoPersona, model.EnrichmentPending, model.EnrichmentProcessing,
		model.EnrichmentCompleted, model.EnrichmentFailed:
		return true
	default:
		return false
	}
}
