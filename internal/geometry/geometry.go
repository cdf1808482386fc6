// Package geometry computes alignment and distribution of measured boxes.
// The functions here are pure; Engine applies their results to a BlockStore.
package geometry

import (
	"fmt"
	"math"
	"sort"
)

// Box is a measured bounding box relative to the blocks' common positioned ancestor.
type Box struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Box) right() float64   { return b.X + b.Width }
func (b Box) bottom() float64  { return b.Y + b.Height }
func (b Box) centerX() float64 { return b.X + b.Width/2 }
func (b Box) centerY() float64 { return b.Y + b.Height/2 }

// Position is the new top-left corner of a box.
type Position struct {
	ID   string  `json:"id"`
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

type AlignMode string

const (
	AlignLeft   AlignMode = "left"
	AlignRight  AlignMode = "right"
	AlignCenter AlignMode = "center"
	AlignTop    AlignMode = "top"
	AlignBottom AlignMode = "bottom"
	AlignMiddle AlignMode = "middle"
)

type DistributeMode string

const (
	DistributeHorizontal DistributeMode = "horizontal"
	DistributeVertical   DistributeMode = "vertical"
	DistributeSpacing    DistributeMode = "spacing"
	// DistributeSpacingVertical equalises the vertical gaps between edges.
	DistributeSpacingVertical DistributeMode = "spacing-vertical"
)

const (
	MinAlign      = 2
	MinDistribute = 3
)

// Epsilon is the largest coordinate change, in px, treated as no movement.
const Epsilon = 1e-6

// settle keeps orig when v is within Epsilon of it, so re-running an
// operation on its own output reproduces the same coordinates exactly.
func settle(v, orig float64) float64 {
	if math.Abs(v-orig) <= Epsilon {
		return orig
	}
	return v
}

// Moved reports whether p differs from b by more than Epsilon.
func Moved(p Position, b Box) bool {
	return math.Abs(p.Left-b.X) > Epsilon || math.Abs(p.Top-b.Y) > Epsilon
}

func ParseAlignMode(s string) (AlignMode, error) {
	switch m := AlignMode(s); m {
	case AlignLeft, AlignRight, AlignCenter, AlignTop, AlignBottom, AlignMiddle:
		return m, nil
	}
	return "", fmt.Errorf("unknown align mode %q", s)
}

func ParseDistributeMode(s string) (DistributeMode, error) {
	switch m := DistributeMode(s); m {
	case DistributeHorizontal, DistributeVertical, DistributeSpacing, DistributeSpacingVertical:
		return m, nil
	}
	return "", fmt.Errorf("unknown distribute mode %q", s)
}

// Align lines boxes up along one edge or center line. It returns a position
// for every box, anchors included, or nil for fewer than MinAlign boxes.
func Align(boxes []Box, mode AlignMode) []Position {
	if len(boxes) < MinAlign {
		return nil
	}
	var target float64
	switch mode {
	case AlignLeft:
		target = boxes[0].X
		for _, b := range boxes[1:] {
			target = min(target, b.X)
		}
	case AlignRight:
		target = boxes[0].right()
		for _, b := range boxes[1:] {
			target = max(target, b.right())
		}
	case AlignCenter:
		for _, b := range boxes {
			target += b.centerX()
		}
		target /= float64(len(boxes))
	case AlignTop:
		target = boxes[0].Y
		for _, b := range boxes[1:] {
			target = min(target, b.Y)
		}
	case AlignBottom:
		target = boxes[0].bottom()
		for _, b := range boxes[1:] {
			target = max(target, b.bottom())
		}
	case AlignMiddle:
		for _, b := range boxes {
			target += b.centerY()
		}
		target /= float64(len(boxes))
	default:
		return nil
	}

	var out []Position
	for _, b := range boxes {
		p := Position{ID: b.ID, Left: b.X, Top: b.Y}
		switch mode {
		case AlignLeft:
			p.Left = target
		case AlignRight:
			p.Left = target - b.Width
		case AlignCenter:
			p.Left = target - b.Width/2
		case AlignTop:
			p.Top = target
		case AlignBottom:
			p.Top = target - b.Height
		case AlignMiddle:
			p.Top = target - b.Height/2
		}
		p.Left, p.Top = settle(p.Left, b.X), settle(p.Top, b.Y)
		out = append(out, p)
	}
	return out
}

// Distribute spreads boxes evenly between the first and last along an axis;
// those two keep their coordinates. It returns a position for every box in
// axis order, or nil for fewer than MinDistribute boxes.
//
// horizontal and vertical space box centers evenly. spacing and
// spacing-vertical equalise the gaps between consecutive edges.
func Distribute(boxes []Box, mode DistributeMode) []Position {
	if len(boxes) < MinDistribute {
		return nil
	}
	sorted := make([]Box, len(boxes))
	copy(sorted, boxes)

	var place func(i int, b Box) Position
	switch mode {
	case DistributeHorizontal:
		sortBy(sorted, Box.centerX)
		first, last := sorted[0].centerX(), sorted[len(sorted)-1].centerX()
		step := (last - first) / float64(len(sorted)-1)
		place = func(i int, b Box) Position {
			return Position{ID: b.ID, Left: first + step*float64(i) - b.Width/2, Top: b.Y}
		}
	case DistributeVertical:
		sortBy(sorted, Box.centerY)
		first, last := sorted[0].centerY(), sorted[len(sorted)-1].centerY()
		step := (last - first) / float64(len(sorted)-1)
		place = func(i int, b Box) Position {
			return Position{ID: b.ID, Left: b.X, Top: first + step*float64(i) - b.Height/2}
		}
	case DistributeSpacing:
		sortBy(sorted, func(b Box) float64 { return b.X })
		lefts := spread(sorted, func(b Box) (float64, float64) { return b.X, b.Width })
		place = func(i int, b Box) Position {
			return Position{ID: b.ID, Left: lefts[i], Top: b.Y}
		}
	case DistributeSpacingVertical:
		sortBy(sorted, func(b Box) float64 { return b.Y })
		tops := spread(sorted, func(b Box) (float64, float64) { return b.Y, b.Height })
		place = func(i int, b Box) Position {
			return Position{ID: b.ID, Left: b.X, Top: tops[i]}
		}
	default:
		return nil
	}

	out := make([]Position, len(sorted))
	last := len(sorted) - 1
	for i, b := range sorted {
		p := Position{ID: b.ID, Left: b.X, Top: b.Y}
		if i > 0 && i < last {
			p = place(i, b)
		}
		p.Left, p.Top = settle(p.Left, b.X), settle(p.Top, b.Y)
		out[i] = p
	}
	return out
}

// spread returns the start coordinate of each box so that the gaps between
// consecutive boxes are equal and the first and last stay put. axis gives a
// box's start and extent.
func spread(sorted []Box, axis func(Box) (start, size float64)) []float64 {
	var sizes float64
	for _, b := range sorted {
		_, size := axis(b)
		sizes += size
	}
	first, _ := axis(sorted[0])
	lastStart, lastSize := axis(sorted[len(sorted)-1])
	gap := (lastStart + lastSize - first - sizes) / float64(len(sorted)-1)
	out := make([]float64, len(sorted))
	cursor := first
	for i, b := range sorted {
		_, size := axis(b)
		out[i] = cursor
		cursor += size + gap
	}
	return out
}

func sortBy(boxes []Box, key func(Box) float64) {
	sort.SliceStable(boxes, func(i, j int) bool {
		ki, kj := key(boxes[i]), key(boxes[j])
		if ki != kj {
			return ki < kj
		}
		return boxes[i].ID < boxes[j].ID
	})
}
