// Package analysis turns acquired profile and website data into the
// authority-audit report via the Anthropic API.
package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coollabora/clinical-audit/internal/config"
	"github.com/coollabora/clinical-audit/internal/model"
	"github.com/coollabora/clinical-audit/internal/resilience"
	"github.com/coollabora/clinical-audit/pkg/anthropic"
)

const maxScreenshotBytes = 5 << 20

// Output is the parsed result of one analysis call.
type Output struct {
	Report   string
	Analysis *model.AnalysisResult

	// VisionUsed reports whether a screenshot was actually attached. The
	// builder producing a URL is not enough; the download must also succeed.
	VisionUsed bool
}

// Analyzer produces authority reports from acquisition results.
type Analyzer struct {
	ai    anthropic.Client
	cfg   config.AnthropicConfig
	http  *http.Client
	retry resilience.RetryConfig
}

// NewAnalyzer builds an Analyzer on top of an Anthropic client.
func NewAnalyzer(ai anthropic.Client, cfg config.AnthropicConfig) *Analyzer {
	return &Analyzer{
		ai:   ai,
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     20 * time.Second,
			OnRetry:        resilience.RetryLogger("anthropic", "create_message"),
		},
	}
}

// Analyze runs the audit prompt over the acquired data. A screenshot that
// cannot be downloaded degrades the call to text-only; a response without a
// valid JSON block degrades Output.Analysis to nil. Only a failed API call is
// an error.
func (a *Analyzer) Analyze(ctx context.Context, acq *model.AcquisitionResult) (*Output, error) {
	parts := []anthropic.Part{anthropic.TextPart(a.buildUserPrompt(acq))}

	system := auditorSystemPrompt
	visionUsed := false
	if acq.ScreenshotURL != "" {
		if img, err := a.downloadScreenshot(ctx, acq.ScreenshotURL); err != nil {
			zap.L().Warn("analysis: screenshot download failed, proceeding text-only",
				zap.Error(err))
		} else {
			parts = append(parts, img)
			system = auditorSystemPrompt + "\n\n" + visionAuditorPrompt
			visionUsed = true
		}
	}
	parts = append(parts, anthropic.TextPart(jsonInstruction))

	temp := 0.2
	req := anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		System:      system,
		Parts:       parts,
		Temperature: &temp,
	}

	resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.ai.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: create message")
	}
	resp.Usage.LogCost(a.cfg.Model, "audit")

	report, result := ParseResponse(resp.Text)
	if result == nil {
		zap.L().Warn("analysis: response carried no parseable json summary",
			zap.String("handle", acq.Identity.Handle))
	} else {
		result.GlobalScore = result.EffectiveGlobalScore()
	}

	return &Output{Report: report, Analysis: result, VisionUsed: visionUsed}, nil
}

func (a *Analyzer) buildUserPrompt(acq *model.AcquisitionResult) string {
	profileJSON := "{}"
	if acq.Profile != nil {
		if b, err := json.MarshalIndent(acq.Profile, "", "  "); err == nil {
			profileJSON = string(b)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSTAGRAM PROFILE DATA:\n%s\n\n", profileJSON)
	fmt.Fprintf(&b, "WEBSITE TEXT:\n%s\n", acq.WebsiteText)
	if acq.Restriction != model.RestrictionNone {
		fmt.Fprintf(&b, "\nNOTE: the Instagram profile is %s; metadata above may be partial.\n", acq.Restriction)
	}
	return b.String()
}

func (a *Analyzer) downloadScreenshot(ctx context.Context, rawURL string) (anthropic.Part, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return anthropic.Part{}, eris.Wrap(err, "analysis: build screenshot request")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return anthropic.Part{}, eris.Wrap(err, "analysis: fetch screenshot")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return anthropic.Part{}, eris.Errorf("analysis: screenshot status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxScreenshotBytes))
	if err != nil {
		return anthropic.Part{}, eris.Wrap(err, "analysis: read screenshot body")
	}
	if len(data) == 0 {
		return anthropic.Part{}, eris.New("analysis: empty screenshot body")
	}

	return anthropic.ImagePart("image/png", base64.StdEncoding.EncodeToString(data)), nil
}
