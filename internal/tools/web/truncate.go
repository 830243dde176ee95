// Package web implements the retrieval tools: web search, webpage visiting,
// and deep research. Each tool selects a provider client at construction
// time based on which API keys are configured.
package web

import "fmt"

const (
	// DefaultVisitLimit caps visit_webpage output.
	DefaultVisitLimit = 40000

	// DefaultSearchLimit caps web_search output.
	DefaultSearchLimit = 20000
)

// TruncateContent keeps the head and tail of oversized content, splicing a
// marker in the middle.
func TruncateContent(content string, maxLength int) string {
	if len(content) <= maxLength {
		return content
	}
	marker := fmt.Sprintf("\n..._This content has been truncated to stay below %d characters_...\n", maxLength)
	return content[:maxLength/2] + marker + content[len(content)-maxLength/2:]
}
