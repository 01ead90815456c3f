package stage

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// fencePattern matches a markdown code fence line such as ``` or ```json.
	fencePattern = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// extractJSONObject returns the span from the first '{' to the last '}' of a
// model reply after removing code fences, or "" when there is none. Trailing
// commas are only stripped when the span does not already parse.
func extractJSONObject(content string) string {
	content = fencePattern.ReplaceAllString(content, "")
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	candidate := content[start : end+1]
	if json.Valid([]byte(candidate)) {
		return candidate
	}
	return trailingCommaPattern.ReplaceAllString(candidate, "$1")
}
