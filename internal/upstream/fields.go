package upstream

import "github.com/coollabora/clinical-audit/pkg/apify"

// Actor output schemas drift between versions, so every field read goes
// through an ordered-alternatives lookup: the first present key wins.

func firstString(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func firstInt(item map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := item[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return 0
}

func firstList(item map[string]any, keys ...string) []map[string]any {
	for _, k := range keys {
		v, ok := item[k]
		if !ok {
			continue
		}
		raw, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(raw))
		for _, e := range raw {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// firstImageURL reads a post image URL: displayUrl and display_url first,
// then the first entry of an images array.
func firstImageURL(post map[string]any) string {
	if s := firstString(post, "displayUrl", "display_url"); s != "" {
		return s
	}
	if imgs, ok := post["images"].([]any); ok && len(imgs) > 0 {
		if s, ok := imgs[0].(string); ok {
			return s
		}
	}
	return ""
}

// itemError extracts the per-item error marker some actors embed instead of
// failing the run.
func itemError(item apify.Item) string {
	return firstString(item, "error", "errorDescription")
}
