package browser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// baseColors are the preferred outline colors. Indices beyond the palette
// get deterministic shifted variants so every element stays telling apart.
var baseColors = []color.RGBA{
	{204, 0, 0, 255},
	{0, 136, 0, 255},
	{0, 0, 204, 255},
	{204, 112, 0, 255},
	{128, 0, 128, 255},
	{0, 128, 128, 255},
	{255, 0, 255, 255},
	{128, 128, 0, 255},
	{0, 70, 140, 255},
	{140, 70, 0, 255},
	{70, 140, 0, 255},
	{140, 0, 70, 255},
}

func colorForIndex(idx int) color.RGBA {
	if idx < len(baseColors) {
		return baseColors[idx]
	}
	base := baseColors[idx%len(baseColors)]
	return color.RGBA{
		R: clampByte(int(base.R) + idx*17%31 - 15),
		G: clampByte(int(base.G) + idx*23%29 - 14),
		B: clampByte(int(base.B) + idx*13%27 - 13),
		A: 255,
	}
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

const outlineThickness = 2

// HighlightElements draws an indexed outline around each interactive
// element on the screenshot and returns the annotated image, base64 PNG.
// Grid helper elements (row_/column_ ids) are not drawn.
func HighlightElements(screenshotB64 string, elements map[int]InteractiveElement) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(screenshotB64)
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}
	src, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode png: %w", err)
	}
	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)

	indices := make([]int, 0, len(elements))
	for idx := range elements {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var placed []image.Rectangle
	for _, idx := range indices {
		el := elements[idx]
		if strings.HasPrefix(el.BrowserAgentID, "row_") || strings.HasPrefix(el.BrowserAgentID, "column_") {
			continue
		}
		col := colorForIndex(idx)
		box := image.Rect(
			int(el.Rect.Left), int(el.Rect.Top),
			int(el.Rect.Right), int(el.Rect.Bottom),
		).Intersect(img.Bounds())
		if box.Empty() {
			continue
		}
		drawOutline(img, box, col, outlineThickness)

		label := strconv.Itoa(idx)
		labelBox := placeLabel(img.Bounds(), box, label, placed)
		placed = append(placed, labelBox)
		draw.Draw(img, labelBox, &image.Uniform{col}, image.Point{}, draw.Src)
		drawText(img, label, labelBox)
	}

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

func drawOutline(img *image.RGBA, box image.Rectangle, col color.RGBA, thickness int) {
	for t := 0; t < thickness; t++ {
		r := box.Inset(t)
		if r.Empty() {
			return
		}
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, r.Min.Y, col)
			img.SetRGBA(x, r.Max.Y-1, col)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			img.SetRGBA(r.Min.X, y, col)
			img.SetRGBA(r.Max.X-1, y, col)
		}
	}
}

// placeLabel prefers the spot just above the box's top-right corner,
// falling inside the box when there is no headroom, then shifts down past
// any labels already occupying that spot.
func placeLabel(bounds, box image.Rectangle, label string, placed []image.Rectangle) image.Rectangle {
	face := basicfont.Face7x13
	w := len(label)*face.Advance + 4
	h := face.Height + 2

	left := box.Max.X - w
	if left < bounds.Min.X {
		left = bounds.Min.X
	}
	top := box.Min.Y - h - 2
	if top < bounds.Min.Y {
		top = box.Min.Y + 2
	}

	labelBox := image.Rect(left, top, left+w, top+h)
	for overlapsAny(labelBox, placed) {
		labelBox = labelBox.Add(image.Pt(0, h+2))
		if labelBox.Max.Y > bounds.Max.Y {
			break
		}
	}
	return labelBox.Intersect(bounds)
}

func overlapsAny(box image.Rectangle, placed []image.Rectangle) bool {
	for _, p := range placed {
		if box.Overlaps(p) {
			return true
		}
	}
	return false
}

func drawText(img *image.RGBA, text string, box image.Rectangle) {
	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(box.Min.X + 2),
			Y: fixed.I(box.Min.Y + face.Ascent),
		},
	}
	d.DrawString(text)
}
