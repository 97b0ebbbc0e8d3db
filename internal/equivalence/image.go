package equivalence

import (
	"image"
	"image/draw"
	"math"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// Grayscale converts img to 8 bit luma with its bounds moved to the origin.
// The conversion uses the ITU-R 601 weights of color.GrayModel.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Difference returns the per pixel absolute difference of two grayscale
// images of the same size.
func Difference(a, b *image.Gray) *image.Gray {
	diff := image.NewGray(a.Rect)
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		diff.Pix[i] = uint8(d)
	}
	return diff
}

// RemoveHighlights zeroes the action areas of diff whose changed pixels span
// the whole action, within tolerance pixels on every edge. Such a change is
// the focus or hover highlight of a control rather than a different screen.
func RemoveHighlights(diff *image.Gray, rects []schemas.Rect, tolerance int) {
	for _, r := range rects {
		area := r.Image().Intersect(diff.Rect)
		if area.Empty() {
			continue
		}
		box, ok := nonZeroBounds(diff, area)
		if !ok || !schemas.RectFromImage(box).Similar(r, tolerance) {
			continue
		}
		for y := area.Min.Y; y < area.Max.Y; y++ {
			row := diff.Pix[diff.PixOffset(area.Min.X, y):diff.PixOffset(area.Max.X, y)]
			clear(row)
		}
	}
}

// nonZeroBounds returns the smallest rectangle inside area holding every non
// zero pixel of img.
func nonZeroBounds(img *image.Gray, area image.Rectangle) (image.Rectangle, bool) {
	box := image.Rectangle{Min: area.Max, Max: area.Min}
	found := false
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if img.Pix[img.PixOffset(x, y)] == 0 {
				continue
			}
			found = true
			box.Min.X = min(box.Min.X, x)
			box.Min.Y = min(box.Min.Y, y)
			box.Max.X = max(box.Max.X, x+1)
			box.Max.Y = max(box.Max.Y, y+1)
		}
	}
	return box, found
}

// RMS is the root mean square intensity of img.
func RMS(img *image.Gray) float64 {
	n := len(img.Pix)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range img.Pix {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(n))
}
