package filter

import (
	"image"

	"gocv.io/x/gocv"
)

// Frame differencing constants.
const (
	// DiffThreshold is the binary threshold for difference detection.
	DiffThreshold = 25
	// MaskValue is the value written for pixels above the threshold.
	MaskValue = 255
)

// FrameDiff detects motion between consecutive frames by thresholding their
// absolute difference. It remembers the previous frame in grayscale.
type FrameDiff struct {
	prevGray    gocv.Mat
	kernel      gocv.Mat
	initialized bool
}

// NewFrameDiff creates a FrameDiff with no previous frame.
func NewFrameDiff() *FrameDiff {
	return &FrameDiff{
		prevGray: gocv.NewMat(),
		kernel:   gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
	}
}

// Apply compares frame against the previous one and returns the binary motion
// mask together with true. The mask is dilated dilateIterations times.
//
// On the first call, or when the frame size changed since the previous call,
// there is nothing to compare against: the frame is remembered and a copy of it
// is returned together with false.
//
// Algorithm:
// 1. Convert frame to grayscale
// 2. If no comparable previous frame, store it and pass the input through
// 3. Absolute difference with the previous frame
// 4. Binary threshold at DiffThreshold (0 or 255)
// 5. Dilate to merge nearby blobs
// 6. Store the current frame as the new previous frame
func (d *FrameDiff) Apply(frame gocv.Mat, dilateIterations int) (gocv.Mat, bool) {
	gray := Grayscale(frame)
	defer gray.Close()

	if !d.initialized || gray.Rows() != d.prevGray.Rows() || gray.Cols() != d.prevGray.Cols() {
		gray.CopyTo(&d.prevGray)
		d.initialized = true
		return frame.Clone(), false
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(d.prevGray, gray, &diff)

	mask := gocv.NewMat()
	gocv.Threshold(diff, &mask, DiffThreshold, MaskValue, gocv.ThresholdBinary)

	for i := 0; i < dilateIterations; i++ {
		gocv.Dilate(mask, &mask, d.kernel)
	}

	gray.CopyTo(&d.prevGray)
	return mask, true
}

// Remember stores frame as the previous frame without producing a mask.
func (d *FrameDiff) Remember(frame gocv.Mat) {
	gray := Grayscale(frame)
	defer gray.Close()

	gray.CopyTo(&d.prevGray)
	d.initialized = true
}

// Initialized reports whether a previous frame is stored.
func (d *FrameDiff) Initialized() bool {
	return d.initialized
}

// Reset forgets the previous frame.
func (d *FrameDiff) Reset() {
	if !d.prevGray.Empty() {
		d.prevGray.Close()
		d.prevGray = gocv.NewMat()
	}
	d.initialized = false
}

// Close releases resources used by the filter. The filter must not be used afterwards.
func (d *FrameDiff) Close() {
	d.prevGray.Close()
	d.kernel.Close()
	d.initialized = false
}
