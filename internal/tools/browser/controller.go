package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/haasonsaas/agentd/internal/backoff"
)

// Default viewport dimensions.
const (
	viewportWidth  = 1268
	viewportHeight = 951
)

// launchArgs disable the isolation features that break cross-origin
// element detection and make headless Chromium easy to fingerprint.
var launchArgs = []string{
	"--no-sandbox",
	"--disable-blink-features=AutomationControlled",
	"--disable-web-security",
	"--disable-site-isolation-trials",
	"--disable-features=IsolateOrigins,site-per-process",
	fmt.Sprintf("--window-size=%d,%d", viewportWidth, viewportHeight),
}

// Config configures the browser controller.
type Config struct {
	// Headless launches Chromium without a window.
	Headless bool

	// HTTPClient is used for PDF content-type probes. Defaults to a
	// short-timeout client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Controller owns the playwright driver, browser, context, and the
// current page, and produces State observations for the browser tools.
// All methods are safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	state   *State
	logger  *slog.Logger
	http    *http.Client
}

// NewController creates a controller. The browser launches lazily on
// first use.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Controller{cfg: cfg, logger: logger, http: client}
}

func (c *Controller) ensureStarted() error {
	if c.page != nil {
		return nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(c.cfg.Headless),
		Args:     launchArgs,
	})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("launch chromium: %w", err)
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: viewportWidth, Height: viewportHeight},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("new context: %w", err)
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		c.logger.Warn("failed to install stealth script", "error", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return fmt.Errorf("new page: %w", err)
	}
	c.pw, c.browser, c.context, c.page = pw, browser, bctx, page
	return nil
}

// CurrentPage returns the active page, launching the browser if needed.
func (c *Controller) CurrentPage() (playwright.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	return c.page, nil
}

// PageCount returns the number of open tabs.
func (c *Controller) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.context == nil {
		return 0
	}
	return len(c.context.Pages())
}

// SwitchToTab makes the tab at index current. Negative indices count from
// the end, so -1 is the most recently opened tab.
func (c *Controller) SwitchToTab(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureStarted(); err != nil {
		return err
	}
	pages := c.context.Pages()
	if index < 0 {
		index += len(pages)
	}
	if index < 0 || index >= len(pages) {
		return fmt.Errorf("no tab at index %d", index)
	}
	c.page = pages[index]
	return c.page.BringToFront()
}

// CreateNewTab opens a blank tab and makes it current.
func (c *Controller) CreateNewTab() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureStarted(); err != nil {
		return err
	}
	page, err := c.context.NewPage()
	if err != nil {
		return fmt.Errorf("new tab: %w", err)
	}
	c.page = page
	return nil
}

// Restart tears the browser down and launches a fresh one. The last known
// state is discarded.
func (c *Controller) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown()
	c.state = nil
	return c.ensureStarted()
}

// Close shuts the browser down.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown()
}

func (c *Controller) shutdown() {
	if c.context != nil {
		c.context.Close()
	}
	if c.browser != nil {
		c.browser.Close()
	}
	if c.pw != nil {
		c.pw.Stop()
	}
	c.pw, c.browser, c.context, c.page = nil, nil, nil, nil
}

// State returns the last observed state, which may be nil before the
// first UpdateState.
func (c *Controller) State() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// statePolicy spaces the update retries between 0.5s and 2s.
var statePolicy = backoff.Policy{Initial: 500 * time.Millisecond, Max: 2 * time.Second, Factor: 2}

// UpdateState re-observes the page: detects interactive elements, takes a
// screenshot, and renders the highlighted variant. Detection is retried a
// few times; when every attempt fails the last known state is returned so
// a transient page reload does not kill the run.
func (c *Controller) UpdateState(ctx context.Context) (*State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}

	var state *State
	err := backoff.Retry(ctx, 3, statePolicy, func() error {
		var uerr error
		state, uerr = c.observe()
		return uerr
	})
	if err != nil {
		if c.state != nil {
			c.logger.Warn("state update failed, using last known state", "error", err)
			return c.state, nil
		}
		return nil, fmt.Errorf("update browser state: %w", err)
	}
	c.state = state
	return state, nil
}

// observation is the wire shape of the detection script result.
type observation struct {
	Elements []InteractiveElement `json:"elements"`
	Viewport Viewport             `json:"viewport"`
}

func (c *Controller) observe() (*State, error) {
	raw, err := c.page.Evaluate(detectElementsScript)
	if err != nil {
		return nil, fmt.Errorf("detect elements: %w", err)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode detection result: %w", err)
	}
	var obs observation
	if err := json.Unmarshal(encoded, &obs); err != nil {
		return nil, fmt.Errorf("decode detection result: %w", err)
	}

	shot, err := c.page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	screenshot := base64.StdEncoding.EncodeToString(shot)

	elements := make(map[int]InteractiveElement)
	for _, el := range FilterElements(obs.Elements) {
		elements[el.Index] = el
	}

	highlighted, err := HighlightElements(screenshot, elements)
	if err != nil {
		c.logger.Warn("failed to highlight screenshot", "error", err)
		highlighted = screenshot
	}

	var tabs []TabInfo
	for i, page := range c.context.Pages() {
		title, _ := page.Title()
		tabs = append(tabs, TabInfo{PageID: i, URL: page.URL(), Title: title})
	}

	return &State{
		URL:                      c.page.URL(),
		Tabs:                     tabs,
		Viewport:                 obs.Viewport,
		Screenshot:               screenshot,
		ScreenshotWithHighlights: highlighted,
		InteractiveElements:      elements,
	}, nil
}

// HandlePDFNavigation dismisses Chromium's PDF viewer chrome after a
// navigation lands on a PDF, then re-observes. The viewer needs a moment
// to render before it accepts key input.
func (c *Controller) HandlePDFNavigation(ctx context.Context) (*State, error) {
	page, err := c.CurrentPage()
	if err != nil {
		return nil, err
	}
	if !c.IsPDFURL(page.URL()) {
		if state := c.State(); state != nil {
			return state, nil
		}
		return c.UpdateState(ctx)
	}

	sleep(ctx, 5*time.Second)
	page.Keyboard().Press("Escape")
	page.Keyboard().Press("Control+\\")
	page.Mouse().Click(float64(viewportWidth)*0.75, float64(viewportHeight)*0.25)
	return c.UpdateState(ctx)
}

// IsPDFURL reports whether the URL serves a PDF, checking the extension
// first and falling back to a content-type probe.
func (c *Controller) IsPDFURL(pageURL string) bool {
	trimmed := pageURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if strings.HasSuffix(strings.ToLower(trimmed), ".pdf") {
		return true
	}

	resp, err := c.http.Head(pageURL)
	if err == nil {
		defer resp.Body.Close()
		return strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "application/pdf")
	}
	return false
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
