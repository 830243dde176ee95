package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// searchResult is the normalized shape every search provider reduces to.
type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SearchClient is one search provider.
type SearchClient interface {
	Name() string
	Forward(ctx context.Context, query string) (string, error)
}

// ClientConfig carries the shared dependencies of provider clients.
// Getenv and HTTPClient exist so tests can inject fakes.
type ClientConfig struct {
	HTTPClient *http.Client
	Getenv     func(string) string
	MaxResults int
	MaxLength  int
	Logger     *slog.Logger
}

func (c ClientConfig) sanitized(defaultMax int) ClientConfig {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if c.Getenv == nil {
		c.Getenv = os.Getenv
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 10
	}
	if c.MaxLength <= 0 {
		c.MaxLength = defaultMax
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// NewSearchClient picks a provider by configured API keys, in priority
// order SerpAPI > Jina > Tavily, defaulting to DuckDuckGo.
func NewSearchClient(cfg ClientConfig) SearchClient {
	cfg = cfg.sanitized(DefaultSearchLimit)
	switch {
	case cfg.Getenv("SERPAPI_API_KEY") != "":
		cfg.Logger.Info("using SerpAPI to search")
		return &serpAPISearch{cfg: cfg, key: cfg.Getenv("SERPAPI_API_KEY")}
	case cfg.Getenv("JINA_API_KEY") != "":
		cfg.Logger.Info("using Jina to search")
		return &jinaSearch{cfg: cfg, key: cfg.Getenv("JINA_API_KEY")}
	case cfg.Getenv("TAVILY_API_KEY") != "":
		cfg.Logger.Info("using Tavily to search")
		return &tavilySearch{cfg: cfg, key: cfg.Getenv("TAVILY_API_KEY")}
	default:
		cfg.Logger.Info("using DuckDuckGo to search")
		return &duckDuckGoSearch{cfg: cfg}
	}
}

func formatResults(results []searchResult, maxLength int) (string, error) {
	formatted, err := json.MarshalIndent(results, "", "    ")
	if err != nil {
		return "", err
	}
	return TruncateContent(string(formatted), maxLength), nil
}

func getJSON(ctx context.Context, client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", errNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %s", errNetwork, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", errNetwork, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", errExtraction, err)
	}
	return nil
}

type serpAPISearch struct {
	cfg ClientConfig
	key string
}

func (s *serpAPISearch) Name() string { return "SerpAPI" }

func (s *serpAPISearch) Forward(ctx context.Context, query string) (string, error) {
	q := url.Values{"q": {query}, "api_key": {s.key}}
	req, err := http.NewRequest(http.MethodGet, "https://serpapi.com/search.json?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	var payload struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := getJSON(ctx, s.cfg.HTTPClient, req, &payload); err != nil {
		return "", err
	}
	results := make([]searchResult, 0, s.cfg.MaxResults)
	for _, r := range payload.OrganicResults {
		if len(results) >= s.cfg.MaxResults {
			break
		}
		results = append(results, searchResult{Title: r.Title, URL: r.Link, Content: r.Snippet})
	}
	return formatResults(results, s.cfg.MaxLength)
}

type jinaSearch struct {
	cfg ClientConfig
	key string
}

func (s *jinaSearch) Name() string { return "Jina" }

func (s *jinaSearch) Forward(ctx context.Context, query string) (string, error) {
	q := url.Values{"q": {query}, "num": {strconv.Itoa(s.cfg.MaxResults)}}
	req, err := http.NewRequest(http.MethodGet, "https://s.jina.ai/?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("X-Respond-With", "no-content")
	req.Header.Set("Accept", "application/json")

	var payload struct {
		Data []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"data"`
	}
	if err := getJSON(ctx, s.cfg.HTTPClient, req, &payload); err != nil {
		return "", err
	}
	results := make([]searchResult, 0, len(payload.Data))
	for _, r := range payload.Data {
		results = append(results, searchResult{Title: r.Title, URL: r.URL, Content: r.Description})
	}
	return formatResults(results, s.cfg.MaxLength)
}

type tavilySearch struct {
	cfg ClientConfig
	key string
}

func (s *tavilySearch) Name() string { return "Tavily" }

func (s *tavilySearch) Forward(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"api_key":     s.key,
		"query":       query,
		"max_results": s.cfg.MaxResults,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, "https://api.tavily.com/search", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var payload struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := getJSON(ctx, s.cfg.HTTPClient, req, &payload); err != nil {
		return "", err
	}
	if len(payload.Results) == 0 {
		return fmt.Sprintf("No search results found for query: %s", query), nil
	}
	results := make([]searchResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		results = append(results, searchResult{Title: r.Title, URL: r.URL, Content: r.Content})
	}
	return formatResults(results, s.cfg.MaxLength)
}

// duckDuckGoSearch scrapes the keyless HTML endpoint.
type duckDuckGoSearch struct {
	cfg ClientConfig
}

func (s *duckDuckGoSearch) Name() string { return "DuckDuckGo" }

func (s *duckDuckGoSearch) Forward(ctx context.Context, query string) (string, error) {
	q := url.Values{"q": {query}}
	req, err := http.NewRequest(http.MethodGet, "https://html.duckduckgo.com/html/?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.cfg.HTTPClient.Do(req.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %s", errNetwork, resp.Status)
	}

	results, err := parseDuckDuckGo(resp.Body, s.cfg.MaxResults)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%w: no results found, try a less restrictive/shorter query", errExtraction)
	}

	entries := make([]string, len(results))
	for i, r := range results {
		entries[i] = fmt.Sprintf("[%s](%s)\n%s", r.Title, r.URL, r.Content)
	}
	return TruncateContent("## Search Results\n\n"+strings.Join(entries, "\n\n"), s.cfg.MaxLength), nil
}

// parseDuckDuckGo extracts result links and snippets from the HTML page.
func parseDuckDuckGo(r io.Reader, maxResults int) ([]searchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errExtraction, err)
	}

	var results []searchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			results = append(results, searchResult{
				Title: textContent(n),
				URL:   attr(n, "href"),
			})
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") && len(results) > 0 {
			if results[len(results)-1].Content == "" {
				results[len(results)-1].Content = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
