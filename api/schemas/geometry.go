package schemas

import (
	"fmt"
	"image"
)

// Rect is an axis aligned rectangle in pixels. Right and Bottom are exclusive,
// matching image.Rectangle.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// NewRect builds a Rect from its four edges.
func NewRect(left, top, right, bottom int) Rect {
	return Rect{Left: left, Top: top, Right: right, Bottom: bottom}
}

// RectFromImage converts an image.Rectangle.
func RectFromImage(r image.Rectangle) Rect {
	return Rect{Left: r.Min.X, Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y}
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Area returns zero for degenerate rectangles.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width() * r.Height()
}

// Empty reports whether the rectangle contains no pixels.
func (r Rect) Empty() bool {
	return r.Left >= r.Right || r.Top >= r.Bottom
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() (x, y int) {
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2
}

// Offset translates the rectangle by (dx, dy).
func (r Rect) Offset(dx, dy int) Rect {
	return Rect{Left: r.Left + dx, Top: r.Top + dy, Right: r.Right + dx, Bottom: r.Bottom + dy}
}

// Absolute converts a rectangle relative to parent into screen coordinates.
func (r Rect) Absolute(parent Rect) Rect {
	return r.Offset(parent.Left, parent.Top)
}

// Relative converts a screen rectangle into coordinates relative to parent.
func (r Rect) Relative(parent Rect) Rect {
	return r.Offset(-parent.Left, -parent.Top)
}

// Clip returns the intersection of r and bounds.
func (r Rect) Clip(bounds Rect) Rect {
	return RectFromImage(r.Image().Intersect(bounds.Image()))
}

// Similar reports whether every edge of r lies within tolerance pixels of the
// matching edge of other.
func (r Rect) Similar(other Rect, tolerance int) bool {
	return abs(r.Left-other.Left) <= tolerance &&
		abs(r.Top-other.Top) <= tolerance &&
		abs(r.Right-other.Right) <= tolerance &&
		abs(r.Bottom-other.Bottom) <= tolerance
}

// Image converts to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", r.Left, r.Top, r.Right, r.Bottom)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
