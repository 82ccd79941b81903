// Package filter implements the frame transforms applied by the processing stage.
//
// Every function here returns a new gocv.Mat that the caller must close, unless
// stated otherwise. Stateful filters (FrameDiff, Background) are owned by a single
// goroutine and are not safe for concurrent use.
package filter

import (
	"image"

	"gocv.io/x/gocv"
)

// FlipHorizontal mirrors src around the vertical axis.
func FlipHorizontal(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Flip(src, &dst, 1)
	return dst
}

// GaussianBlur smooths src with the given kernel size.
func GaussianBlur(src gocv.Mat, kernel image.Point) gocv.Mat {
	dst := gocv.NewMat()
	gocv.GaussianBlur(src, &dst, kernel, 0, 0, gocv.BorderDefault)
	return dst
}

// Grayscale reduces src to a single intensity channel. Single-channel input is copied.
func Grayscale(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	if src.Channels() > 1 {
		gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(&dst)
	}
	return dst
}

// ensureColor converts a single-channel mat to BGR in place so coloured
// annotations stay visible.
func ensureColor(m *gocv.Mat) {
	if m.Channels() != 1 {
		return
	}
	color := gocv.NewMat()
	gocv.CvtColor(*m, &color, gocv.ColorGrayToBGR)
	m.Close()
	*m = color
}
