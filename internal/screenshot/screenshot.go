// Package screenshot builds capture URLs for the external screenshot
// service. No network call happens here: the URL is templated and whoever
// dereferences it (the report view, the analysis image download) pays the
// capture cost.
package screenshot

import (
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/coollabora/clinical-audit/internal/config"
)

// Builder templates ScreenshotAPI capture URLs.
type Builder struct {
	cfg config.ScreenshotConfig
}

// NewBuilder creates a Builder.
func NewBuilder(cfg config.ScreenshotConfig) *Builder {
	return &Builder{cfg: cfg}
}

// BuildURL returns the capture URL for the given target, or "" when the
// target is empty or no API key is configured.
func (b *Builder) BuildURL(targetURL string) string {
	if targetURL == "" {
		return ""
	}
	if b.cfg.Key == "" {
		zap.L().Warn("screenshot: no API key configured, skipping capture")
		return ""
	}

	params := url.Values{}
	params.Set("token", b.cfg.Key)
	params.Set("url", targetURL)
	params.Set("width", "800")
	params.Set("height", "600")
	params.Set("full_page", "false")
	params.Set("fresh", "false")
	params.Set("output", "image")
	params.Set("file_type", "png")
	params.Set("wait_for_event", "load")
	params.Set("delay", strconv.Itoa(1000))

	return b.cfg.BaseURL + "?" + params.Encode()
}
