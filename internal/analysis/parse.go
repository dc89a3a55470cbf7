package analysis

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/coollabora/clinical-audit/internal/model"
)

var (
	jsonFenceRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	bareJSONRe  = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseResponse splits the model output into the human-readable report and
// the structured analysis. The structured part is best effort: a missing or
// malformed JSON block yields a nil AnalysisResult, never an error, so a
// slightly off-format response still produces a usable audit. When no fence
// is present a trailing bare JSON object is accepted too.
func ParseResponse(text string) (report string, result *model.AnalysisResult) {
	matches := jsonFenceRe.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		var parsed model.AnalysisResult
		if err := json.Unmarshal([]byte(m[1]), &parsed); err != nil {
			zap.L().Warn("analysis: unparseable json block in response", zap.Error(err))
			continue
		}
		result = &parsed
	}
	report = strings.TrimSpace(jsonFenceRe.ReplaceAllString(text, ""))

	if len(matches) == 0 {
		if raw := bareJSONRe.FindString(text); raw != "" {
			var parsed model.AnalysisResult
			if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
				result = &parsed
				report = strings.TrimSpace(strings.Replace(text, raw, "", 1))
			}
		}
	}

	return report, result
}
