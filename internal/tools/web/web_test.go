package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport routes requests to canned responses by URL substring.
type fakeTransport struct {
	responses map[string]string
	status    int
	requests  []*http.Request
}

func (t *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.requests = append(t.requests, req)
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	for substr, body := range t.responses {
		if strings.Contains(req.URL.String(), substr) {
			return &http.Response{
				StatusCode: status,
				Status:     http.StatusText(status),
				Body:       io.NopCloser(strings.NewReader(body)),
				Header:     make(http.Header),
			}, nil
		}
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Status:     "Not Found",
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
	}, nil
}

func envWith(keys map[string]string) func(string) string {
	return func(name string) string { return keys[name] }
}

func clientConfig(transport *fakeTransport, keys map[string]string) ClientConfig {
	return ClientConfig{
		HTTPClient: &http.Client{Transport: transport},
		Getenv:     envWith(keys),
	}
}

func TestTruncateContentKeepsHeadAndTail(t *testing.T) {
	content := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	out := TruncateContent(content, 100)

	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 50)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("z", 50)))
	assert.Contains(t, out, "_This content has been truncated to stay below 100 characters_")

	short := "short"
	assert.Equal(t, short, TruncateContent(short, 100))
}

func TestSearchClientSelectionPriority(t *testing.T) {
	cases := []struct {
		name string
		keys map[string]string
		want string
	}{
		{"serpapi wins", map[string]string{"SERPAPI_API_KEY": "a", "JINA_API_KEY": "b", "TAVILY_API_KEY": "c"}, "SerpAPI"},
		{"jina next", map[string]string{"JINA_API_KEY": "b", "TAVILY_API_KEY": "c"}, "Jina"},
		{"tavily next", map[string]string{"TAVILY_API_KEY": "c"}, "Tavily"},
		{"duckduckgo fallback", nil, "DuckDuckGo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewSearchClient(ClientConfig{Getenv: envWith(tc.keys)})
			assert.Equal(t, tc.want, client.Name())
		})
	}
}

func TestVisitClientSelectionPriority(t *testing.T) {
	cases := []struct {
		name string
		keys map[string]string
		want string
	}{
		{"firecrawl wins", map[string]string{"FIRECRAWL_API_KEY": "a", "JINA_API_KEY": "b"}, "FireCrawl"},
		{"jina next", map[string]string{"JINA_API_KEY": "b", "TAVILY_API_KEY": "c"}, "Jina"},
		{"tavily next", map[string]string{"TAVILY_API_KEY": "c"}, "Tavily"},
		{"markdownify fallback", nil, "Markdownify"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewVisitClient(ClientConfig{Getenv: envWith(tc.keys)})
			assert.Equal(t, tc.want, client.Name())
		})
	}
}

func TestSerpAPISearch(t *testing.T) {
	transport := &fakeTransport{responses: map[string]string{
		"serpapi.com": `{"organic_results": [
			{"title": "Go", "link": "https://go.dev", "snippet": "The Go language"},
			{"title": "Docs", "link": "https://go.dev/doc", "snippet": "Documentation"}
		]}`,
	}}
	tool := NewSearchTool(clientConfig(transport, map[string]string{"SERPAPI_API_KEY": "k"}))

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query": "golang"}`))
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)

	var results []searchResult
	require.NoError(t, json.Unmarshal([]byte(result.Content), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "https://go.dev", results[0].URL)
	assert.Equal(t, "The Go language", results[0].Content)
}

func TestSearchErrorSurfacedAsToolError(t *testing.T) {
	transport := &fakeTransport{status: http.StatusInternalServerError, responses: map[string]string{"serpapi.com": `{}`}}
	tool := NewSearchTool(clientConfig(transport, map[string]string{"SERPAPI_API_KEY": "k"}))

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query": "golang"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "Error searching with SerpAPI")
}

func TestMarkdownifyVisit(t *testing.T) {
	page := `<html><head><title>x</title><style>body{}</style></head><body>
		<h1>Welcome</h1>
		<p>Some <strong>bold</strong> text and a <a href="https://go.dev">link</a>.</p>
		<ul><li>first</li><li>second</li></ul>
	</body></html>`
	transport := &fakeTransport{responses: map[string]string{"example.com": page}}
	tool := NewVisitTool(clientConfig(transport, nil))

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url": "https://example.com/page"}`))
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)
	assert.Contains(t, result.Content, "# Welcome")
	assert.Contains(t, result.Content, "**bold**")
	assert.Contains(t, result.Content, "[link](https://go.dev)")
	assert.Contains(t, result.Content, "* first")
	assert.NotContains(t, result.Content, "body{}")
}

func TestVisitNetworkErrorMessage(t *testing.T) {
	transport := &fakeTransport{status: http.StatusBadGateway, responses: map[string]string{"example.com": ""}}
	tool := NewVisitTool(clientConfig(transport, nil))

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url": "https://example.com"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "Failed to access https://example.com")
}

func TestVisitRewritesArxivAbstracts(t *testing.T) {
	transport := &fakeTransport{responses: map[string]string{
		"arxiv.org/html/2301.00001": "<html><body><p>paper text</p></body></html>",
	}}
	tool := NewVisitTool(clientConfig(transport, nil))

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url": "https://arxiv.org/abs/2301.00001"}`))
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)
	assert.Contains(t, result.Content, "paper text")
	require.NotEmpty(t, transport.requests)
	assert.Equal(t, "https://arxiv.org/html/2301.00001", transport.requests[0].URL.String())
}

func TestFireCrawlVisitTruncates(t *testing.T) {
	long := strings.Repeat("m", 50000)
	transport := &fakeTransport{responses: map[string]string{
		"firecrawl.dev": fmt.Sprintf(`{"data": {"markdown": %q}}`, long),
	}}
	tool := NewVisitTool(clientConfig(transport, map[string]string{"FIRECRAWL_API_KEY": "k"}))

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url": "https://example.com"}`))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Less(t, len(result.Content), 50000)
	assert.Contains(t, result.Content, "truncated to stay below 40000")
}

func TestDeepResearchVisitsTopResults(t *testing.T) {
	transport := &fakeTransport{responses: map[string]string{
		"serpapi.com": `{"organic_results": [
			{"title": "One", "link": "https://one.test", "snippet": "s1"},
			{"title": "Two", "link": "https://two.test", "snippet": "s2"}
		]}`,
		"one.test": "<html><body><p>content one</p></body></html>",
		"two.test": "<html><body><p>content two</p></body></html>",
	}}
	// Search via SerpAPI, visits via the markdown fallback.
	tool := NewResearchTool(clientConfig(transport, map[string]string{"SERPAPI_API_KEY": "k"}))

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query": "topic"}`))
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)
	assert.Contains(t, result.Content, "# Research: topic")
	assert.Contains(t, result.Content, "content one")
	assert.Contains(t, result.Content, "content two")
}

func TestDuckDuckGoParsing(t *testing.T) {
	page := `<html><body>
		<div class="result">
			<a class="result__a" href="https://go.dev">The Go Programming Language</a>
			<a class="result__snippet" href="https://go.dev">Build simple, secure software</a>
		</div>
	</body></html>`
	transport := &fakeTransport{responses: map[string]string{"duckduckgo.com": page}}
	tool := NewSearchTool(clientConfig(transport, nil))

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query": "golang"}`))
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)
	assert.Contains(t, result.Content, "## Search Results")
	assert.Contains(t, result.Content, "[The Go Programming Language](https://go.dev)")
	assert.Contains(t, result.Content, "Build simple, secure software")
}
