// Package testdata builds synthetic frames for tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// SolidFrame returns a BGR frame filled with one intensity.
func SolidFrame(width, height int, value float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, value, value, 0), height, width, gocv.MatTypeCV8UC3)
}

// SolidGray returns a single-channel frame filled with one intensity.
func SolidGray(width, height int, value float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, 0, 0, 0), height, width, gocv.MatTypeCV8UC1)
}

// SquareFrame returns a black BGR frame with a filled white rectangle covering square.
func SquareFrame(width, height int, square image.Rectangle) gocv.Mat {
	m := SolidFrame(width, height, 0)
	gocv.Rectangle(&m, square, color.RGBA{R: 255, G: 255, B: 255, A: 0}, -1)
	return m
}

// HalfFrame returns a BGR frame whose left half is black and right half white,
// which makes horizontal flips observable.
func HalfFrame(width, height int) gocv.Mat {
	return SquareFrame(width, height, image.Rect(width/2, 0, width, height))
}

// Sequence returns n copies of a solid BGR frame. The caller closes every frame.
func Sequence(n, width, height int, value float64) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		m := SolidFrame(width, height, value)
		frames = append(frames, &m)
	}
	return frames
}

// CloseAll closes every frame in frames.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
