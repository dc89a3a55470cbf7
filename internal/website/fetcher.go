// Package website fetches a target site's visible text for the analysis
// prompt.
package website

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/coollabora/clinical-audit/internal/config"
	"github.com/coollabora/clinical-audit/internal/model"
)

const maxBodyBytes = 512 * 1024

// Fetcher fetches a page and reduces it to a bounded plain-text excerpt.
// It never returns an error: absent input yields the NOT_PROVIDED sentinel
// and any fetch or parse failure yields FETCH_ERROR.
type Fetcher struct {
	cfg    config.WebsiteConfig
	client *http.Client
}

// NewFetcher creates a Fetcher with the configured timeout and user agent.
func NewFetcher(cfg config.WebsiteConfig) *Fetcher {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: timeout,
				}).DialContext,
				TLSHandshakeTimeout: timeout,
			},
		},
	}
}

// FetchText fetches the URL and returns up to MaxChars of collapsed body
// text, or a sentinel value.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) string {
	if rawURL == "" {
		return model.WebsiteNotProvided
	}
	targetURL := NormalizeURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		zap.L().Warn("website: create request", zap.String("url", targetURL), zap.Error(err))
		return model.WebsiteFetchError
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		zap.L().Warn("website: fetch failed", zap.String("url", targetURL), zap.Error(err))
		return model.WebsiteFetchError
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		zap.L().Warn("website: error status", zap.String("url", targetURL), zap.Int("status", resp.StatusCode))
		return model.WebsiteFetchError
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		zap.L().Warn("website: read body", zap.String("url", targetURL), zap.Error(err))
		return model.WebsiteFetchError
	}

	text, err := extractBodyText(body)
	if err != nil {
		zap.L().Warn("website: parse html", zap.String("url", targetURL), zap.Error(err))
		return model.WebsiteFetchError
	}

	maxChars := f.cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 3000
	}
	if len(text) > maxChars {
		text = text[:maxChars]
	}

	zap.L().Debug("website: content fetched",
		zap.String("url", targetURL),
		zap.Int("chars", len(text)),
	)
	return text
}

// NormalizeURL prefixes https:// when the URL carries no scheme.
func NormalizeURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return "https://" + rawURL
}

var spaceRe = regexp.MustCompile(`\s+`)

// extractBodyText pulls the visible text of the document body, dropping
// script and style content, and collapses runs of whitespace.
func extractBodyText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	text := doc.Find("body").Text()
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " ")), nil
}
