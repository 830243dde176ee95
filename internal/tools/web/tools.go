package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/agentd/internal/agent"
)

// SearchTool is the web_search tool over a provider-selected client.
type SearchTool struct {
	client SearchClient
}

// NewSearchTool creates the search tool; the provider is fixed at
// construction.
func NewSearchTool(cfg ClientConfig) *SearchTool {
	return &SearchTool{client: NewSearchClient(cfg)}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return "Performs a web search based on your query (think a Google search) then returns the top search results."
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The search query to perform."}
		},
		"required": ["query"]
	}`)
}

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	output, err := t.client.Forward(ctx, input.Query)
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Error searching with %s: %v", t.client.Name(), err)), nil
	}
	return &agent.ToolResult{
		Content: output,
		Message: fmt.Sprintf("Searched the web for '%s' using %s", input.Query, t.client.Name()),
	}, nil
}

// VisitTool is the visit_webpage tool over a provider-selected client.
type VisitTool struct {
	client VisitClient
}

// NewVisitTool creates the visit tool; the provider is fixed at
// construction.
func NewVisitTool(cfg ClientConfig) *VisitTool {
	return &VisitTool{client: NewVisitClient(cfg)}
}

func (t *VisitTool) Name() string { return "visit_webpage" }

func (t *VisitTool) Description() string {
	return "You should call this tool when you need to visit a webpage and extract its content. Returns webpage content as text."
}

func (t *VisitTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "The url of the webpage to visit."}
		},
		"required": ["url"]
	}`)
}

func (t *VisitTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	pageURL := rewriteArxivURL(input.URL)

	output, err := t.client.Forward(ctx, pageURL)
	if err != nil {
		switch {
		case errors.Is(err, errExtraction):
			return agent.ToolError(fmt.Sprintf("Failed to extract content from %s using %s tool. Please visit the webpage in a browser to manually verify the content or confirm that none is available.", pageURL, t.client.Name())), nil
		case errors.Is(err, errNetwork):
			return agent.ToolError(fmt.Sprintf("Failed to access %s using %s tool. Please check if the URL is correct and accessible from your browser.", pageURL, t.client.Name())), nil
		default:
			return agent.ToolError(fmt.Sprintf("Failed to visit %s using %s tool. Please visit the webpage in a browser to manually verify the content.", pageURL, t.client.Name())), nil
		}
	}
	return &agent.ToolResult{
		Content: output,
		Message: fmt.Sprintf("Webpage %s successfully visited using %s", pageURL, t.client.Name()),
	}, nil
}

// rewriteArxivURL points abstract pages at their HTML rendering, which
// carries the full paper text.
func rewriteArxivURL(pageURL string) string {
	if !strings.Contains(pageURL, "arxiv.org/abs") {
		return pageURL
	}
	parts := strings.Split(pageURL, "/")
	return "https://arxiv.org/html/" + parts[len(parts)-1]
}

// ResearchTool is the deep_research tool: a search pass followed by visits
// to the top results, composed into one markdown report.
type ResearchTool struct {
	search    SearchClient
	visit     VisitClient
	maxPages  int
	maxLength int
}

// NewResearchTool creates the deep research tool over the same provider
// selection as the search and visit tools.
func NewResearchTool(cfg ClientConfig) *ResearchTool {
	return &ResearchTool{
		search:    NewSearchClient(cfg),
		visit:     NewVisitClient(cfg),
		maxPages:  3,
		maxLength: DefaultVisitLimit,
	}
}

func (t *ResearchTool) Name() string { return "deep_research" }

func (t *ResearchTool) Description() string {
	return "You should call this tool when you need to perform a deep research on a complex topic. This tool is good for providing a comprehensive survey and deep analysis of a topic or niche answers that are hard to find with single search. You can also use this tool to gain large amount of context information."
}

func (t *ResearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The query to perform deep research on."}
		},
		"required": ["query"]
	}`)
}

func (t *ResearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}

	searchOutput, err := t.search.Forward(ctx, input.Query)
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Error researching '%s': %v", input.Query, err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research: %s\n\n## Search Results\n\n%s\n", input.Query, searchOutput)

	for i, pageURL := range extractResultURLs(searchOutput, t.maxPages) {
		content, err := t.visit.Forward(ctx, pageURL)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "\n## Source %d: %s\n\n%s\n", i+1, pageURL, content)
	}

	return &agent.ToolResult{
		Content: TruncateContent(sb.String(), t.maxLength),
		Message: fmt.Sprintf("Performed deep research on '%s'", input.Query),
	}, nil
}

// extractResultURLs pulls up to limit result URLs from either the JSON or
// markdown shapes the search clients produce.
func extractResultURLs(searchOutput string, limit int) []string {
	var structured []searchResult
	var urls []string
	if err := json.Unmarshal([]byte(searchOutput), &structured); err == nil {
		for _, r := range structured {
			if r.URL != "" && len(urls) < limit {
				urls = append(urls, r.URL)
			}
		}
		return urls
	}
	for _, line := range strings.Split(searchOutput, "\n") {
		open := strings.Index(line, "](")
		end := strings.LastIndex(line, ")")
		if open >= 0 && end > open+2 && len(urls) < limit {
			urls = append(urls, line[open+2:end])
		}
	}
	return urls
}
