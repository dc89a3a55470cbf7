package model

import "math"

// ScoreBlock is one scored dimension of the analysis output: a 1-10 integer,
// a status label from the analysis service's enum, and a free-text verdict.
type ScoreBlock struct {
	Score   int    `json:"score"`
	Status  string `json:"status"`
	Verdict string `json:"verdict"`
}

// AnalysisResult is the structured summary the analysis service appends to
// its free-text report as a fenced JSON block.
type AnalysisResult struct {
	BrandIntegrity       ScoreBlock `json:"brandIntegrity"`
	VisualInfrastructure ScoreBlock `json:"visualInfrastructure"`
	GlobalScore          int        `json:"globalScore"`
}

// VisionFinding is the structured verdict of a standalone screenshot
// assessment run from the review console.
type VisionFinding struct {
	FindingType      string   `json:"findingType"`
	ErosionLevel     int      `json:"erosionLevel"`
	Classification   string   `json:"classification"`
	Verdict          string   `json:"verdict"`
	DetectedElements []string `json:"detectedElements"`
}

// RewriteSuggestion pairs a low-status caption phrase with a high-status
// replacement.
type RewriteSuggestion struct {
	Original  string `json:"original"`
	Suggested string `json:"suggested"`
}

// CaptionFinding is the structured verdict of a standalone caption-text
// assessment.
type CaptionFinding struct {
	AuthorityDensity   int                 `json:"authorityDensity"`
	RedFlagTerms       []string            `json:"redFlagTerms"`
	Classification     string              `json:"classification"`
	Verdict            string              `json:"verdict"`
	RewriteSuggestions []RewriteSuggestion `json:"rewriteSuggestions"`
}

// EffectiveGlobalScore returns the authoritative global score. The service's
// own globalScore field wins; when it is missing or zero the rounded mean of
// the two sub-scores is used instead.
func (r *AnalysisResult) EffectiveGlobalScore() int {
	if r == nil {
		return 0
	}
	if r.GlobalScore > 0 {
		return r.GlobalScore
	}
	mean := float64(r.BrandIntegrity.Score+r.VisualInfrastructure.Score) / 2
	return int(math.Round(mean))
}
