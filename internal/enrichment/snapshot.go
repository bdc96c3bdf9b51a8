package enrichment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

const (
	userAgent = "advisorhub/1.0 (+persona enrichment)"

	maxTitleRunes       = 200
	maxDescriptionRunes = 500
)

// SiteSnapshot はWebサイトのトップページから抽出した要約情報。
type SiteSnapshot struct {
	Title       string
	Description string
}

// IsEmpty はタイトルと説明文のどちらも取得できなかったかどうかを返す。
func (s SiteSnapshot) IsEmpty() bool {
	return s.Title == "" && s.Description == ""
}

// fetchSnapshot はWebサイトを取得してheadからタイトルと説明文を抽出する。
func (e *Enricher) fetchSnapshot(ctx context.Context, siteURL string) (SiteSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return SiteSnapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.siteClient.Do(req)
	if err != nil {
		return SiteSnapshot{}, fmt.Errorf("site fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SiteSnapshot{}, fmt.Errorf("site returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !isHTMLContentType(ct) {
		return SiteSnapshot{}, fmt.Errorf("site returned non-HTML content type %q", ct)
	}

	// 上限を超える部分は読まず、先頭部分だけで解析する
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodySize))
	if err != nil {
		return SiteSnapshot{}, fmt.Errorf("failed to read site body: %w", err)
	}

	snap := parseSnapshot(body)
	snap.Title = e.sanitizer.Sanitize(snap.Title, maxTitleRunes)
	snap.Description = e.sanitizer.Sanitize(snap.Description, maxDescriptionRunes)
	return snap, nil
}

func isHTMLContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// parseSnapshot はHTMLのheadから title 要素と説明文の meta 要素を抽出する。
// name="description" を優先し、無ければ og:description を使う。
func parseSnapshot(body []byte) SiteSnapshot {
	var snap SiteSnapshot
	var ogDescription string

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return finishSnapshot(snap, ogDescription)

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "body":
				return finishSnapshot(snap, ogDescription)
			case "title":
				inTitle = tt == html.StartTagToken && snap.Title == ""
			case "meta":
				if !hasAttr {
					continue
				}
				name, content := metaAttrs(tokenizer)
				switch name {
				case "description":
					if snap.Description == "" {
						snap.Description = content
					}
				case "og:description":
					if ogDescription == "" {
						ogDescription = content
					}
				}
			}

		case html.TextToken:
			if inTitle {
				snap.Title += string(tokenizer.Text())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = false
			}
		}
	}
}

func metaAttrs(tokenizer *html.Tokenizer) (name, content string) {
	for {
		key, val, more := tokenizer.TagAttr()
		switch strings.ToLower(string(key)) {
		case "name", "property":
			if name == "" {
				name = strings.ToLower(strings.TrimSpace(string(val)))
			}
		case "content":
			content = string(val)
		}
		if !more {
			return name, content
		}
	}
}

func finishSnapshot(snap SiteSnapshot, ogDescription string) SiteSnapshot {
	if snap.Description == "" {
		snap.Description = ogDescription
	}
	snap.Title = strings.TrimSpace(snap.Title)
	snap.Description = strings.TrimSpace(snap.Description)
	return snap
}
