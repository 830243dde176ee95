package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

// Error kinds for webpage visiting. The visit tool maps each to a distinct
// user-facing diagnostic.
var (
	errNetwork    = errors.New("network error")
	errExtraction = errors.New("content extraction failed")
)

// VisitClient is one webpage extraction provider.
type VisitClient interface {
	Name() string
	Forward(ctx context.Context, pageURL string) (string, error)
}

// NewVisitClient picks a provider by configured API keys, in priority order
// FireCrawl > Jina > Tavily, defaulting to the built-in markdown converter.
func NewVisitClient(cfg ClientConfig) VisitClient {
	cfg = cfg.sanitized(DefaultVisitLimit)
	switch {
	case cfg.Getenv("FIRECRAWL_API_KEY") != "":
		cfg.Logger.Info("using FireCrawl to visit webpages")
		return &fireCrawlVisit{cfg: cfg, key: cfg.Getenv("FIRECRAWL_API_KEY")}
	case cfg.Getenv("JINA_API_KEY") != "":
		cfg.Logger.Info("using Jina to visit webpages")
		return &jinaVisit{cfg: cfg, key: cfg.Getenv("JINA_API_KEY")}
	case cfg.Getenv("TAVILY_API_KEY") != "":
		cfg.Logger.Info("using Tavily to visit webpages")
		return &tavilyVisit{cfg: cfg, key: cfg.Getenv("TAVILY_API_KEY")}
	default:
		cfg.Logger.Info("using built-in markdown converter to visit webpages")
		return &markdownVisit{cfg: cfg}
	}
}

type fireCrawlVisit struct {
	cfg ClientConfig
	key string
}

func (v *fireCrawlVisit) Name() string { return "FireCrawl" }

func (v *fireCrawlVisit) Forward(ctx context.Context, pageURL string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"url":             pageURL,
		"onlyMainContent": false,
		"formats":         []string{"markdown"},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, "https://api.firecrawl.dev/v1/scrape", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.key)

	var payload struct {
		Data struct {
			Markdown string `json:"markdown"`
		} `json:"data"`
	}
	if err := getJSON(ctx, v.cfg.HTTPClient, req, &payload); err != nil {
		return "", err
	}
	if payload.Data.Markdown == "" {
		return "", fmt.Errorf("%w: no content could be extracted from webpage", errExtraction)
	}
	return TruncateContent(payload.Data.Markdown, v.cfg.MaxLength), nil
}

type jinaVisit struct {
	cfg ClientConfig
	key string
}

func (v *jinaVisit) Name() string { return "Jina" }

func (v *jinaVisit) Forward(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, "https://r.jina.ai/"+pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.key)
	req.Header.Set("X-Engine", "browser")
	req.Header.Set("X-Return-Format", "markdown")
	req.Header.Set("X-With-Images-Summary", "true")

	var payload struct {
		Data struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		} `json:"data"`
	}
	if err := getJSON(ctx, v.cfg.HTTPClient, req, &payload); err != nil {
		return "", err
	}
	content := payload.Data.Title + "\n\n" + payload.Data.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: no content could be extracted from webpage", errExtraction)
	}
	return TruncateContent(content, v.cfg.MaxLength), nil
}

type tavilyVisit struct {
	cfg ClientConfig
	key string
}

func (v *tavilyVisit) Name() string { return "Tavily" }

func (v *tavilyVisit) Forward(ctx context.Context, pageURL string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"api_key":        v.key,
		"urls":           []string{pageURL},
		"include_images": true,
		"extract_depth":  "advanced",
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, "https://api.tavily.com/extract", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var payload struct {
		Results []struct {
			RawContent string   `json:"raw_content"`
			Images     []string `json:"images"`
		} `json:"results"`
	}
	if err := getJSON(ctx, v.cfg.HTTPClient, req, &payload); err != nil {
		return "", err
	}
	if len(payload.Results) == 0 || payload.Results[0].RawContent == "" {
		return fmt.Sprintf("No content could be extracted from %s", pageURL), nil
	}
	content := payload.Results[0].RawContent
	if images := payload.Results[0].Images; len(images) > 0 {
		var sb strings.Builder
		sb.WriteString(content)
		sb.WriteString("\n\n### Images:\n")
		for i, img := range images {
			fmt.Fprintf(&sb, "![Image %d](%s)\n", i+1, img)
		}
		content = sb.String()
	}
	return TruncateContent(content, v.cfg.MaxLength), nil
}

// markdownVisit fetches the page directly and converts HTML to markdown.
type markdownVisit struct {
	cfg ClientConfig
}

func (v *markdownVisit) Name() string { return "Markdownify" }

func (v *markdownVisit) Forward(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := v.cfg.HTTPClient.Do(req.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %s", errNetwork, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errNetwork, err)
	}

	markdown, err := htmlToMarkdown(string(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errExtraction, err)
	}
	if markdown == "" {
		return "", fmt.Errorf("%w: no content found in the webpage", errExtraction)
	}
	return TruncateContent(markdown, v.cfg.MaxLength), nil
}
