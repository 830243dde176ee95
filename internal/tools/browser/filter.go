package browser

import (
	"math"
	"slices"
	"sort"
)

// rowThreshold is how far apart two element tops may be while still
// counting as the same visual row.
const rowThreshold = 20.0

// overlapThreshold is the IoU above which two elements are treated as
// duplicates of each other.
const overlapThreshold = 0.7

// FilterElements deduplicates overlapping detections and renumbers the
// survivors in reading order (top to bottom, left to right).
func FilterElements(elements []InteractiveElement) []InteractiveElement {
	return sortByPosition(filterOverlapping(elements, overlapThreshold))
}

// filterOverlapping keeps the larger, heavier element of each overlapping
// pair. A contained element survives only when it outweighs its container
// and covers at least half of it.
func filterOverlapping(elements []InteractiveElement, iouThreshold float64) []InteractiveElement {
	if len(elements) == 0 {
		return nil
	}
	ordered := slices.Clone(elements)
	sort.SliceStable(ordered, func(i, j int) bool {
		ai, aj := ordered[i].Rect.Area(), ordered[j].Rect.Area()
		if ai != aj {
			return ai > aj
		}
		return ordered[i].Weight > ordered[j].Weight
	})

	var filtered []InteractiveElement
	for _, current := range ordered {
		keep := true
		for i, existing := range filtered {
			if IoU(current.Rect, existing.Rect) > iouThreshold {
				keep = false
				break
			}
			if Contains(existing.Rect, current.Rect) {
				if existing.Weight >= current.Weight && existing.ZIndex == current.ZIndex {
					keep = false
					break
				}
				if current.Rect.Area() >= existing.Rect.Area()*0.5 {
					filtered = append(filtered[:i], filtered[i+1:]...)
					break
				}
			}
		}
		if keep {
			filtered = append(filtered, current)
		}
	}
	return filtered
}

// sortByPosition groups elements into rows by top coordinate, orders each
// row left to right, and reassigns indices in that order.
func sortByPosition(elements []InteractiveElement) []InteractiveElement {
	if len(elements) == 0 {
		return nil
	}
	byTop := slices.Clone(elements)
	sort.SliceStable(byTop, func(i, j int) bool {
		return byTop[i].Rect.Top < byTop[j].Rect.Top
	})

	var rows [][]InteractiveElement
	current := []InteractiveElement{byTop[0]}
	for _, el := range byTop[1:] {
		last := current[len(current)-1]
		if math.Abs(el.Rect.Top-last.Rect.Top) <= rowThreshold {
			current = append(current, el)
		} else {
			rows = append(rows, current)
			current = []InteractiveElement{el}
		}
	}
	rows = append(rows, current)

	var out []InteractiveElement
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			return row[i].Rect.Left < row[j].Rect.Left
		})
		out = append(out, row...)
	}
	for i := range out {
		out[i].Index = i
	}
	return out
}
