package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/haasonsaas/agentd/internal/agent"
	"github.com/haasonsaas/agentd/internal/bus"
	"github.com/haasonsaas/agentd/pkg/models"
)

// NewTools returns the full browser tool family sharing one controller.
func NewTools(ctrl *Controller, b *bus.Bus) []agent.Tool {
	base := toolBase{ctrl: ctrl, bus: b}
	return []agent.Tool{
		&NavigationTool{base},
		&RestartTool{base},
		&ScrollTool{toolBase: base, up: false},
		&ScrollTool{toolBase: base, up: true},
		&ClickTool{base},
		&EnterTextTool{base},
		&PressKeyTool{base},
		&WaitTool{base},
		&ViewTool{base},
		&SwitchTabTool{base},
		&OpenNewTabTool{base},
		&GetSelectOptionsTool{base},
		&SelectDropdownOptionTool{base},
	}
}

// toolBase is shared by all browser tools.
type toolBase struct {
	ctrl *Controller
	bus  *bus.Bus
}

const emptySchema = `{"type": "object", "properties": {}, "required": []}`

// observe refreshes the state and packages the screenshot plus summary as
// a two-part tool result, announcing the action on the event bus.
func (b toolBase) observe(ctx context.Context, action, msg string, pdfCheck bool) (*agent.ToolResult, error) {
	state, err := b.ctrl.UpdateState(ctx)
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to observe the browser: %v", err)), nil
	}
	if pdfCheck {
		if s, err := b.ctrl.HandlePDFNavigation(ctx); err == nil {
			state = s
		}
	}
	b.announce(action, state.URL)
	return screenshotResult(state.Screenshot, msg), nil
}

func (b toolBase) announce(action, pageURL string) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(models.NewEvent(models.EventBrowserUse, map[string]any{
		"action": action,
		"url":    pageURL,
	}))
}

func screenshotResult(screenshot, msg string) *agent.ToolResult {
	return &agent.ToolResult{
		Content: msg,
		Parts: []models.ToolResultPart{
			models.ImagePart("image/png", screenshot),
			models.TextPart(msg),
		},
		Message: msg,
	}
}

// navigate drives the page to url and reports the outcome message.
func (b toolBase) navigate(ctx context.Context, pageURL string) (*agent.ToolResult, error) {
	page, err := b.ctrl.CurrentPage()
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to start the browser: %v", err)), nil
	}
	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return agent.ToolError(fmt.Sprintf("Timeout error navigating to %s", pageURL)), nil
		}
		return agent.ToolError(fmt.Sprintf("Something went wrong while navigating to %s; double check the URL and try again.", pageURL)), nil
	}
	sleep(ctx, 1500*time.Millisecond)
	return b.observe(ctx, "navigate", fmt.Sprintf("Navigated to %s", pageURL), true)
}

// NavigationTool drives the current tab to a URL.
type NavigationTool struct{ toolBase }

func (t *NavigationTool) Name() string        { return "browser_navigation" }
func (t *NavigationTool) Description() string { return "Navigate browser to specified URL" }

func (t *NavigationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "Complete URL to visit. Must include protocol prefix."}
		},
		"required": ["url"]
	}`)
}

func (t *NavigationTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	return t.navigate(ctx, input.URL)
}

// RestartTool relaunches the browser and navigates to a URL.
type RestartTool struct{ toolBase }

func (t *RestartTool) Name() string        { return "browser_restart" }
func (t *RestartTool) Description() string { return "Restart browser and navigate to specified URL" }

func (t *RestartTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "Complete URL to visit after restart. Must include protocol prefix."}
		},
		"required": ["url"]
	}`)
}

func (t *RestartTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	if err := t.ctrl.Restart(); err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to restart the browser: %v", err)), nil
	}
	return t.navigate(ctx, input.URL)
}

// ClickTool clicks at viewport coordinates, following any tab the click
// opens.
type ClickTool struct{ toolBase }

func (t *ClickTool) Name() string        { return "browser_click" }
func (t *ClickTool) Description() string { return "Click on an element on the current browser page" }

func (t *ClickTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"coordinate_x": {"type": "number", "description": "X coordinate of click position"},
			"coordinate_y": {"type": "number", "description": "Y coordinate of click position"}
		},
		"required": ["coordinate_x", "coordinate_y"]
	}`)
}

func (t *ClickTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		X *float64 `json:"coordinate_x"`
		Y *float64 `json:"coordinate_y"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	if input.X == nil || input.Y == nil {
		return agent.ToolError("Must provide both coordinate_x and coordinate_y to click on an element"), nil
	}

	page, err := t.ctrl.CurrentPage()
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to start the browser: %v", err)), nil
	}
	before := t.ctrl.PageCount()
	if err := page.Mouse().Click(*input.X, *input.Y); err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to click at %v, %v: %v", *input.X, *input.Y, err)), nil
	}
	sleep(ctx, time.Second)

	msg := fmt.Sprintf("Clicked at coordinates %v, %v", *input.X, *input.Y)
	if t.ctrl.PageCount() > before {
		msg += " - New tab opened - switching to it"
		if err := t.ctrl.SwitchToTab(-1); err == nil {
			sleep(ctx, 100*time.Millisecond)
		}
	}
	return t.observe(ctx, "click", msg, true)
}

// EnterTextTool replaces the focused element's text.
type EnterTextTool struct{ toolBase }

func (t *EnterTextTool) Name() string { return "browser_enter_text" }

func (t *EnterTextTool) Description() string {
	return "Enter text with a keyboard. Use it AFTER you have clicked on an input element. This action will override the current text in the element."
}

func (t *EnterTextTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string", "description": "Text to enter with a keyboard."},
			"press_enter": {"type": "boolean", "description": "If True, the Enter key will be pressed after entering the text. Use this when submitting a form or performing a search."}
		},
		"required": ["text"]
	}`)
}

func (t *EnterTextTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Text       string `json:"text"`
		PressEnter bool   `json:"press_enter"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}

	page, err := t.ctrl.CurrentPage()
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to start the browser: %v", err)), nil
	}
	page.Keyboard().Press("ControlOrMeta+a")
	sleep(ctx, 100*time.Millisecond)
	page.Keyboard().Press("Backspace")
	sleep(ctx, 100*time.Millisecond)
	if err := page.Keyboard().Type(input.Text); err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to enter text: %v", err)), nil
	}
	if input.PressEnter {
		page.Keyboard().Press("Enter")
		sleep(ctx, 2*time.Second)
	}

	msg := fmt.Sprintf("Entered %q on the keyboard. Make sure to double check that the text was entered to where you intended.", input.Text)
	return t.observe(ctx, "enter_text", msg, false)
}

// PressKeyTool simulates a key press or combination.
type PressKeyTool struct{ toolBase }

func (t *PressKeyTool) Name() string        { return "browser_press_key" }
func (t *PressKeyTool) Description() string { return "Simulate key press in the current browser page" }

func (t *PressKeyTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"key": {"type": "string", "description": "Key name to simulate (e.g., Enter, Tab, ArrowUp), supports key combinations (e.g., Control+Enter)."}
		},
		"required": ["key"]
	}`)
}

func (t *PressKeyTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}

	page, err := t.ctrl.CurrentPage()
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to start the browser: %v", err)), nil
	}
	if err := page.Keyboard().Press(input.Key); err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to press %q: %v", input.Key, err)), nil
	}
	sleep(ctx, 500*time.Millisecond)

	return t.observe(ctx, "press_key", fmt.Sprintf("Pressed %q on the keyboard.", input.Key), false)
}

// ScrollTool scrolls the page most of a viewport in either direction. PDF
// pages scroll with PageUp/PageDown since the viewer ignores the wheel.
type ScrollTool struct {
	toolBase
	up bool
}

func (t *ScrollTool) Name() string {
	if t.up {
		return "browser_scroll_up"
	}
	return "browser_scroll_down"
}

func (t *ScrollTool) Description() string {
	if t.up {
		return "Scroll up the current browser page"
	}
	return "Scroll down the current browser page"
}

func (t *ScrollTool) Schema() json.RawMessage { return json.RawMessage(emptySchema) }

func (t *ScrollTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	page, err := t.ctrl.CurrentPage()
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to start the browser: %v", err)), nil
	}

	width, height := float64(viewportWidth), float64(viewportHeight)
	if state := t.ctrl.State(); state != nil && state.Viewport.Width > 0 {
		width, height = float64(state.Viewport.Width), float64(state.Viewport.Height)
	}

	if t.ctrl.IsPDFURL(page.URL()) {
		key := "PageDown"
		if t.up {
			key = "PageUp"
		}
		page.Keyboard().Press(key)
		sleep(ctx, 100*time.Millisecond)
	} else {
		delta := height * 0.8
		if t.up {
			delta = -delta
		}
		page.Mouse().Move(width/2, height/2)
		sleep(ctx, 100*time.Millisecond)
		page.Mouse().Wheel(0, delta)
		sleep(ctx, 100*time.Millisecond)
	}

	msg := "Scrolled page down"
	if t.up {
		msg = "Scrolled page up"
	}
	return t.observe(ctx, "scroll", msg, false)
}

// WaitTool gives the page a second to settle.
type WaitTool struct{ toolBase }

func (t *WaitTool) Name() string            { return "browser_wait" }
func (t *WaitTool) Description() string     { return "Wait for the page to load" }
func (t *WaitTool) Schema() json.RawMessage { return json.RawMessage(emptySchema) }

func (t *WaitTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	sleep(ctx, time.Second)
	return t.observe(ctx, "wait", "Waited for page", true)
}

// ViewTool lists the visible interactive elements alongside the
// highlighted screenshot.
type ViewTool struct{ toolBase }

func (t *ViewTool) Name() string { return "browser_view_interactive_elements" }

func (t *ViewTool) Description() string {
	return "Return the visible interactive elements on the current page"
}

func (t *ViewTool) Schema() json.RawMessage { return json.RawMessage(emptySchema) }

func (t *ViewTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	state, err := t.ctrl.UpdateState(ctx)
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to observe the browser: %v", err)), nil
	}

	msg := fmt.Sprintf("Current URL: %s\n\nCurrent viewport information:\n%s",
		state.URL, formatElements(state.InteractiveElements))
	t.announce("view_interactive_elements", state.URL)
	return screenshotResult(state.ScreenshotWithHighlights, msg), nil
}

// formatElements renders elements as indexed pseudo-HTML tags the model
// can match against the highlighted screenshot.
func formatElements(elements map[int]InteractiveElement) string {
	indices := make([]int, 0, len(elements))
	for idx := range elements {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var sb strings.Builder
	sb.WriteString("<highlighted_elements>\n")
	for _, idx := range indices {
		el := elements[idx]
		sb.WriteString(fmt.Sprintf("[%d]<%s", el.Index, el.TagName))
		if el.InputType != "" {
			sb.WriteString(fmt.Sprintf(" type=%q", el.InputType))
		}
		sb.WriteString(">")
		sb.WriteString(strings.ReplaceAll(el.Text, "\n", " "))
		sb.WriteString(fmt.Sprintf("</%s>\n", el.TagName))
	}
	sb.WriteString("</highlighted_elements>")
	return sb.String()
}

// SwitchTabTool activates a tab by index.
type SwitchTabTool struct{ toolBase }

func (t *SwitchTabTool) Name() string        { return "browser_switch_tab" }
func (t *SwitchTabTool) Description() string { return "Switch to a specific tab by tab index" }

func (t *SwitchTabTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"index": {"type": "integer", "description": "Index of the tab to switch to."}
		},
		"required": ["index"]
	}`)
}

func (t *SwitchTabTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Index int `json:"index"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	if err := t.ctrl.SwitchToTab(input.Index); err != nil {
		return agent.ToolError(err.Error()), nil
	}
	sleep(ctx, 500*time.Millisecond)
	return t.observe(ctx, "switch_tab", fmt.Sprintf("Switched to tab %d", input.Index), false)
}

// OpenNewTabTool opens a blank tab and makes it current.
type OpenNewTabTool struct{ toolBase }

func (t *OpenNewTabTool) Name() string            { return "browser_open_new_tab" }
func (t *OpenNewTabTool) Description() string     { return "Open a new tab" }
func (t *OpenNewTabTool) Schema() json.RawMessage { return json.RawMessage(emptySchema) }

func (t *OpenNewTabTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if err := t.ctrl.CreateNewTab(); err != nil {
		return agent.ToolError(err.Error()), nil
	}
	sleep(ctx, 500*time.Millisecond)
	return t.observe(ctx, "open_new_tab", "Opened a new tab", false)
}

// selectElement resolves an indexed element and checks that it is a
// <select>.
func (b toolBase) selectElement(index int) (InteractiveElement, string) {
	state := b.ctrl.State()
	if state == nil {
		return InteractiveElement{}, fmt.Sprintf("No element found with index %d", index)
	}
	el, ok := state.InteractiveElements[index]
	if !ok {
		return InteractiveElement{}, fmt.Sprintf("No element found with index %d", index)
	}
	if strings.ToLower(el.TagName) != "select" {
		return InteractiveElement{}, fmt.Sprintf("Element %d is not a select element, it's a %s", index, el.TagName)
	}
	return el, ""
}

// GetSelectOptionsTool lists the options of a <select> element.
type GetSelectOptionsTool struct{ toolBase }

func (t *GetSelectOptionsTool) Name() string { return "browser_get_select_options" }

func (t *GetSelectOptionsTool) Description() string {
	return "Get all options from a <select> element. Use this action when you need to get all options from a dropdown."
}

func (t *GetSelectOptionsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"index": {"type": "integer", "description": "Index of the <select> element to get options from."}
		},
		"required": ["index"]
	}`)
}

const getOptionsScript = `
(args) => {
	const select = document.querySelector('[data-browser-agent-id="' + args.browserAgentId + '"]');
	if (!select) return null;
	return {
		options: Array.from(select.options).map(opt => ({
			text: opt.text,
			value: opt.value,
			index: opt.index
		})),
		id: select.id,
		name: select.name
	};
}
`

func (t *GetSelectOptionsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Index int `json:"index"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	el, problem := t.selectElement(input.Index)
	if problem != "" {
		return agent.ToolError(problem), nil
	}

	page, err := t.ctrl.CurrentPage()
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to start the browser: %v", err)), nil
	}
	raw, err := page.Evaluate(getOptionsScript, map[string]any{"browserAgentId": el.BrowserAgentID})
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to read select options: %v", err)), nil
	}

	var data struct {
		Options []struct {
			Text  string `json:"text"`
			Value string `json:"value"`
			Index int    `json:"index"`
		} `json:"options"`
	}
	encoded, err := json.Marshal(raw)
	if err == nil {
		err = json.Unmarshal(encoded, &data)
	}
	if err != nil || len(data.Options) == 0 {
		return agent.ToolError(fmt.Sprintf("No options found in element %d", input.Index)), nil
	}

	lines := make([]string, 0, len(data.Options)+1)
	for _, opt := range data.Options {
		encodedText, _ := json.Marshal(opt.Text)
		lines = append(lines, fmt.Sprintf("%d: option=%s", opt.Index, encodedText))
	}
	lines = append(lines, "If you decide to use this select element, use the exact option name in select_dropdown_option")
	return t.observe(ctx, "get_select_options", strings.Join(lines, "\n"), false)
}

// SelectDropdownOptionTool selects a <select> option by its visible text.
type SelectDropdownOptionTool struct{ toolBase }

func (t *SelectDropdownOptionTool) Name() string { return "browser_select_dropdown_option" }

func (t *SelectDropdownOptionTool) Description() string {
	return "Select an option from a <select> element by the text (name) of the option. Use this after get_select_options and when you need to select an option from a dropdown."
}

func (t *SelectDropdownOptionTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"index": {"type": "integer", "description": "Index of the <select> element to select an option from."},
			"option": {"type": "string", "description": "Text (name) of the option to select from the dropdown."}
		},
		"required": ["index", "option"]
	}`)
}

const selectOptionScript = `
(args) => {
	const select = document.querySelector('[data-browser-agent-id="' + args.uniqueId + '"]');
	if (!select) {
		return { success: false, error: "Select element not found with ID: " + args.uniqueId };
	}
	for (let i = 0; i < select.options.length; i++) {
		const opt = select.options[i];
		if (opt.text === args.optionText) {
			opt.selected = true;
			select.dispatchEvent(new Event('change', { bubbles: true }));
			return { success: true, value: opt.value, index: i };
		}
	}
	return {
		success: false,
		error: "Option not found: " + args.optionText,
		availableOptions: Array.from(select.options).map(o => o.text)
	};
}
`

func (t *SelectDropdownOptionTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Index  int    `json:"index"`
		Option string `json:"option"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	el, problem := t.selectElement(input.Index)
	if problem != "" {
		return agent.ToolError(problem), nil
	}

	page, err := t.ctrl.CurrentPage()
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to start the browser: %v", err)), nil
	}
	raw, err := page.Evaluate(selectOptionScript, map[string]any{
		"uniqueId":   el.BrowserAgentID,
		"optionText": input.Option,
	})
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to select option: %v", err)), nil
	}

	var result struct {
		Success          bool     `json:"success"`
		Value            string   `json:"value"`
		Index            int      `json:"index"`
		Error            string   `json:"error"`
		AvailableOptions []string `json:"availableOptions"`
	}
	encoded, err := json.Marshal(raw)
	if err == nil {
		err = json.Unmarshal(encoded, &result)
	}
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Failed to select option: %v", err)), nil
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Unknown error"
		}
		if len(result.AvailableOptions) > 0 {
			msg += fmt.Sprintf(". Available options: %s", strings.Join(result.AvailableOptions, ", "))
		}
		return agent.ToolError(msg), nil
	}

	msg := fmt.Sprintf("Selected option '%s' with value '%s' at index %d", input.Option, result.Value, result.Index)
	return t.observe(ctx, "select_dropdown_option", msg, false)
}
