package filter

import (
	"image"

	"github.com/ayusman/framepipe/internal/config"
)

// ClampROI fits r inside a width×height frame. Corners are ordered, then each
// coordinate is clamped into [0, width] or [0, height]. The second return value
// is false when the clamped region has no area, in which case nothing inside the
// region can be examined.
func ClampROI(r config.ROI, width, height int) (image.Rectangle, bool) {
	rect := r.Rect() // image.Rect orders the corners

	clamped := image.Rect(
		clamp(rect.Min.X, 0, width),
		clamp(rect.Min.Y, 0, height),
		clamp(rect.Max.X, 0, width),
		clamp(rect.Max.Y, 0, height),
	)
	if clamped.Dx() <= 0 || clamped.Dy() <= 0 {
		return image.Rectangle{}, false
	}
	return clamped, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
