package filter

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	activeColor   = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	inactiveColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

const (
	overlayFont      = gocv.FontHersheySimplex
	overlayFontScale = 0.5
	overlayMargin    = 10
)

// OverlayLabel builds the text drawn next to the region of interest. When
// matching is on the match status is appended.
func OverlayLabel(roi image.Rectangle, matching, matched bool) string {
	label := fmt.Sprintf("ROI (%d,%d)-(%d,%d)", roi.Min.X, roi.Min.Y, roi.Max.X, roi.Max.Y)
	if !matching {
		return label
	}
	if matched {
		return label + " MATCH"
	}
	return label + " NO MATCH"
}

// DrawOverlay outlines roi on frame and writes label in the upper-right corner,
// green when active and red otherwise. An empty roi only gets the label.
func DrawOverlay(frame *gocv.Mat, roi image.Rectangle, label string, active bool) {
	ensureColor(frame)

	c := inactiveColor
	if active {
		c = activeColor
	}

	if !roi.Empty() {
		gocv.Rectangle(frame, roi, c, 2)
	}

	size := gocv.GetTextSize(label, overlayFont, overlayFontScale, 1)
	x := frame.Cols() - size.X - overlayMargin
	if x < 0 {
		x = 0
	}
	gocv.PutText(frame, label, image.Pt(x, overlayMargin+size.Y), overlayFont, overlayFontScale, c, 1)
}
