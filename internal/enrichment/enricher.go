package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/security"
)

const (
	// fieldScore は入力済みのインテーク項目1つあたりの完成度。
	fieldScore = 12
	// snapshotScore はWebサイトの要約を取得できた場合に加算する完成度。
	snapshotScore = 20

	defaultMaxBodySize = 1 << 20
)

// ErrAnalysisRejected は外部分析APIが不正な結果を返したことを表す。
var ErrAnalysisRejected = errors.New("analysis endpoint returned an invalid result")

// EnricherConfig はEnricherの設定。
type EnricherConfig struct {
	// AnalysisURL が空の場合は外部分析を行わず strategic までで終える。
	AnalysisURL string
	AnalysisKey string
	MaxBodySize int64
}

// Enricher はペルソナ1件分の強化処理を実行する。
type Enricher struct {
	siteClient  *http.Client
	apiClient   *http.Client
	sanitizer   security.TextSanitizer
	analysisURL string
	analysisKey string
	maxBodySize int64
	logger      *slog.Logger
}

// NewEnricher はEnricherの新しいインスタンスを生成する。
// siteClient はユーザー入力のURLへアクセスするため、SSRF対策済みのクライアントを渡すこと。
func NewEnricher(siteClient, apiClient *http.Client, sanitizer security.TextSanitizer, cfg EnricherConfig, logger *slog.Logger) *Enricher {
	if apiClient == nil {
		apiClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}
	return &Enricher{
		siteClient:  siteClient,
		apiClient:   apiClient,
		sanitizer:   sanitizer,
		analysisURL: strings.TrimSpace(cfg.AnalysisURL),
		analysisKey: cfg.AnalysisKey,
		maxBodySize: maxBody,
		logger:      logger,
	}
}

// Enrich はペルソナを強化し、到達レベルと完成度を返す。
//
//   - quick: インテーク項目の入力状況のみ
//   - strategic: Webサイトの要約を取得できた
//   - complete: 外部分析APIの結果を採用した
//
// Webサイトの取得失敗はログに残して strategic を諦めるだけで、実行自体は失敗させない。
// 外部分析APIが設定されている場合、その失敗は実行の失敗として返す。
func (e *Enricher) Enrich(ctx context.Context, p *model.Persona) (model.EnrichmentResult, error) {
	result := model.EnrichmentResult{
		Level:        model.EnrichmentLevelQuick,
		Completeness: intakeCompleteness(p),
	}

	var snap SiteSnapshot
	if p.WebsiteURL != "" && e.siteClient != nil {
		s, err := e.fetchSnapshot(ctx, p.WebsiteURL)
		switch {
		case err != nil:
			e.logger.Warn("Webサイトの取得に失敗しました",
				slog.String("persona_id", p.ID),
				slog.String("url", p.WebsiteURL),
				slog.String("error", err.Error()),
			)
		case s.IsEmpty():
			e.logger.Info("Webサイトから要約を抽出できませんでした",
				slog.String("persona_id", p.ID),
			)
		default:
			snap = s
			result.Level = model.EnrichmentLevelStrategic
			result.Completeness += snapshotScore
		}
	}

	if e.analysisURL == "" {
		return result, nil
	}

	analysed, err := e.analyse(ctx, p, snap)
	if err != nil {
		return model.EnrichmentResult{}, err
	}
	return analysed, nil
}

// intakeCompleteness は入力済みのインテーク項目数から完成度を計算する。
func intakeCompleteness(p *model.Persona) int {
	score := 0
	for _, v := range []string{p.BusinessName, p.Industry, p.Audience, p.Goals, p.WebsiteURL} {
		if strings.TrimSpace(v) != "" {
			score += fieldScore
		}
	}
	return score
}

type analysisRequest struct {
	PersonaID       string `json:"persona_id"`
	BusinessName    string `json:"business_name"`
	Industry        string `json:"industry"`
	Audience        string `json:"audience"`
	Goals           string `json:"goals"`
	WebsiteURL      string `json:"website_url,omitempty"`
	SiteTitle       string `json:"site_title,omitempty"`
	SiteDescription string `json:"site_description,omitempty"`
}

type analysisResponse struct {
	Level        string `json:"level"`
	Completeness *int   `json:"completeness"`
}

// analyse は外部分析APIにペルソナを送り、その評価を結果として採用する。
func (e *Enricher) analyse(ctx context.Context, p *model.Persona, snap SiteSnapshot) (model.EnrichmentResult, error) {
	payload, err := json.Marshal(analysisRequest{
		PersonaID:       p.ID,
		BusinessName:    p.BusinessName,
		Industry:        p.Industry,
		Audience:        p.Audience,
		Goals:           p.Goals,
		WebsiteURL:      p.WebsiteURL,
		SiteTitle:       snap.Title,
		SiteDescription: snap.Description,
	})
	if err != nil {
		return model.EnrichmentResult{}, fmt.Errorf("failed to encode analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.analysisURL, bytes.NewReader(payload))
	if err != nil {
		return model.EnrichmentResult{}, fmt.Errorf("failed to create analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if e.analysisKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.analysisKey)
	}

	resp, err := e.apiClient.Do(req)
	if err != nil {
		return model.EnrichmentResult{}, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.EnrichmentResult{}, fmt.Errorf("analysis endpoint returned status %d", resp.StatusCode)
	}

	var ar analysisResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&ar); err != nil {
		return model.EnrichmentResult{}, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	level := model.EnrichmentLevel(ar.Level)
	switch level {
	case model.EnrichmentLevelQuick, model.EnrichmentLevelStrategic, model.EnrichmentLevelComplete:
	default:
		return model.EnrichmentResult{}, fmt.Errorf("%w: unknown level %q", ErrAnalysisRejected, ar.Level)
	}
	if ar.Completeness == nil || *ar.Completeness < 0 || *ar.Completeness > 100 {
		return model.EnrichmentResult{}, fmt.Errorf("%w: completeness out of range", ErrAnalysisRejected)
	}

	return model.EnrichmentResult{Level: level, Completeness: *ar.Completeness}, nil
}
