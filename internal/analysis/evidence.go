package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/coollabora/clinical-audit/internal/model"
	"github.com/coollabora/clinical-audit/internal/resilience"
	"github.com/coollabora/clinical-audit/pkg/anthropic"
)

// Standalone screenshot assessment for the review console. One structured
// finding per image.
const visionEvidencePrompt = `You are a status auditor for elite cosmetic surgery.
Examine the attached image for evidence of clinical incongruence.

FINDING CATEGORIES:
- semantic_incongruence: surgical instruments in non-sterile settings
- raw_visual_trauma: blood or incisions without professional filtering
- status_trivialization: influencer poses, sexualized framing
- poor_lighting: bad lighting, digital noise
- cluttered_setting: messy backgrounds, cables, domestic environments
- integrity: no erosion evidence found

Avoid subjective adjectives like "ugly" or "bad"; use attention-arbitrage
and status-evidence terminology.

Respond ONLY with valid JSON:
{
    "findingType": "semantic_incongruence | raw_visual_trauma | status_trivialization | poor_lighting | cluttered_setting | integrity",
    "erosionLevel": 5,
    "classification": "Critical Erosion | Moderate Vulnerability | Authority Integrity",
    "verdict": "Technical description of the finding...",
    "detectedElements": ["element1", "element2"]
}
erosionLevel is an integer 1-10.`

// Standalone caption-text assessment for the review console.
const captionEvidencePrompt = `You are an elite clinical-rhetoric auditor.
Analyze the following Instagram caption text from a surgeon's account.

RED-FLAG TERMS TO DETECT (status loss signals):
- Commercial: promotion, offer, discount, cheap, don't miss out
- Trivialization: diminutives, filler hype words (super, wow)
- Subordination: help me, follow me, like this, comment below

TEXT TO ANALYZE:
"""
%s
"""

Respond ONLY with valid JSON:
{
    "authorityDensity": 6,
    "redFlagTerms": ["term1", "term2"],
    "classification": "Elite Rhetoric | Moderate Erosion | Active Subordination",
    "verdict": "The specialist presents...",
    "rewriteSuggestions": [
        {"original": "original phrase", "suggested": "high-status phrase"}
    ]
}
authorityDensity is an integer 1-10.`

// MinCaptionChars is the shortest caption text worth analyzing.
const MinCaptionChars = 10

// AnalyzeScreenshot runs a single-image erosion assessment. The image must be
// downloadable; an unparseable model response degrades to a pending finding
// carrying the raw verdict text rather than an error.
func (a *Analyzer) AnalyzeScreenshot(ctx context.Context, imageURL string) (*model.VisionFinding, error) {
	if imageURL == "" {
		return nil, eris.New("analysis: image url required")
	}
	img, err := a.downloadScreenshot(ctx, imageURL)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: evidence screenshot")
	}

	text, err := a.evidenceCall(ctx, "vision_evidence", anthropic.TextPart(visionEvidencePrompt), img)
	if err != nil {
		return nil, err
	}

	var finding model.VisionFinding
	if !decodeEvidence(text, &finding) {
		finding = model.VisionFinding{
			FindingType:      "error",
			ErosionLevel:     5,
			Classification:   "Analysis pending",
			Verdict:          rawVerdict(text),
			DetectedElements: []string{},
		}
	}
	return &finding, nil
}

// AnalyzeCaptions runs a rhetoric assessment over raw caption text.
func (a *Analyzer) AnalyzeCaptions(ctx context.Context, captions string) (*model.CaptionFinding, error) {
	if len(strings.TrimSpace(captions)) < MinCaptionChars {
		return nil, eris.New("analysis: captions text too short")
	}

	prompt := fmt.Sprintf(captionEvidencePrompt, captions)
	text, err := a.evidenceCall(ctx, "captions_evidence", anthropic.TextPart(prompt))
	if err != nil {
		return nil, err
	}

	var finding model.CaptionFinding
	if !decodeEvidence(text, &finding) {
		finding = model.CaptionFinding{
			AuthorityDensity:   5,
			RedFlagTerms:       []string{},
			Classification:     "Analysis pending",
			Verdict:            rawVerdict(text),
			RewriteSuggestions: []model.RewriteSuggestion{},
		}
	}
	return &finding, nil
}

func (a *Analyzer) evidenceCall(ctx context.Context, phase string, parts ...anthropic.Part) (string, error) {
	temp := 0.2
	req := anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Parts:       parts,
		Temperature: &temp,
	}

	resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.ai.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", eris.Wrapf(err, "analysis: %s", phase)
	}
	resp.Usage.LogCost(a.cfg.Model, phase)
	return resp.Text, nil
}

// decodeEvidence accepts the JSON object fenced or bare, anywhere in text.
func decodeEvidence(text string, into any) bool {
	if m := jsonFenceRe.FindStringSubmatch(text); len(m) > 1 {
		if json.Unmarshal([]byte(m[1]), into) == nil {
			return true
		}
	}
	if raw := bareJSONRe.FindString(text); raw != "" {
		if json.Unmarshal([]byte(raw), into) == nil {
			return true
		}
	}
	return false
}

func rawVerdict(text string) string {
	const maxLen = 200
	text = strings.TrimSpace(text)
	if len(text) > maxLen {
		return text[:maxLen]
	}
	return text
}
