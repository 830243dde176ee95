package browser

// Rect is an element bounding box in viewport coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the rectangle area; degenerate rects report zero.
func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Coordinates is a point with an optional size.
type Coordinates struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// InteractiveElement is one clickable or focusable element found on the
// page, indexed for the model to reference in follow-up actions.
type InteractiveElement struct {
	Index          int               `json:"index"`
	TagName        string            `json:"tag_name"`
	Text           string            `json:"text"`
	Attributes     map[string]string `json:"attributes"`
	Viewport       Coordinates       `json:"viewport"`
	Page           Coordinates       `json:"page"`
	Center         Coordinates       `json:"center"`
	Weight         float64           `json:"weight"`
	BrowserAgentID string            `json:"browser_agent_id"`
	InputType      string            `json:"input_type,omitempty"`
	Rect           Rect              `json:"rect"`
	ZIndex         int               `json:"z_index"`
}

// Viewport describes the visible region and scroll extent of the page.
type Viewport struct {
	Width                       int     `json:"width"`
	Height                      int     `json:"height"`
	ScrollX                     int     `json:"scroll_x"`
	ScrollY                     int     `json:"scroll_y"`
	DevicePixelRatio            float64 `json:"device_pixel_ratio"`
	ScrollDistanceAboveViewport int     `json:"scroll_distance_above_viewport"`
	ScrollDistanceBelowViewport int     `json:"scroll_distance_below_viewport"`
}

// TabInfo identifies one open tab.
type TabInfo struct {
	PageID int    `json:"page_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// State is a full observation of the browser: the current page, its
// interactive elements, and screenshots with and without highlights.
type State struct {
	URL                      string
	Tabs                     []TabInfo
	Viewport                 Viewport
	Screenshot               string
	ScreenshotWithHighlights string
	InteractiveElements      map[int]InteractiveElement
}

// IoU computes intersection over union of two rects.
func IoU(a, b Rect) float64 {
	left := max(a.Left, b.Left)
	top := max(a.Top, b.Top)
	right := min(a.Right, b.Right)
	bottom := min(a.Bottom, b.Bottom)
	if right <= left || bottom <= top {
		return 0
	}
	intersection := (right - left) * (bottom - top)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Contains reports whether inner lies fully within outer.
func Contains(outer, inner Rect) bool {
	return inner.Left >= outer.Left &&
		inner.Right <= outer.Right &&
		inner.Top >= outer.Top &&
		inner.Bottom <= outer.Bottom
}
