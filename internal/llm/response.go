package llm

import (
	"regexp"
	"strings"
)

var (
	fenceOpenRe  = regexp.MustCompile("^```[a-zA-Z]*\n?")
	fenceCloseRe = regexp.MustCompile("\n?```$")
)

// CleanJSONResponse strips markdown code fences from a response presumed to
// be JSON. Models frequently wrap JSON in ```json blocks despite being told
// not to.
func CleanJSONResponse(content string) string {
	clean := strings.TrimSpace(content)
	if strings.HasPrefix(clean, "```") {
		clean = fenceOpenRe.ReplaceAllString(clean, "")
		clean = fenceCloseRe.ReplaceAllString(clean, "")
	}
	return strings.TrimSpace(clean)
}
