package filter

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Background subtraction constants.
const (
	// MinRegionArea is the contour area a region must exceed to be reported.
	MinRegionArea = 500.0
	// DefaultHistory is the number of frames the background model remembers.
	DefaultHistory = 500
	// DefaultVarThreshold is the squared Mahalanobis distance that separates
	// foreground from background.
	DefaultVarThreshold = 16.0
)

var regionColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// Region is a foreground area found by the background filter, in full-frame coordinates.
type Region struct {
	Rect image.Rectangle `json:"rect"`
	Area float64         `json:"area"`
}

// KeepRegion reports whether a contour of the given area is large enough to report.
// The threshold itself is excluded.
func KeepRegion(area float64) bool {
	return area > MinRegionArea
}

// Background finds moving objects inside a region of interest using an adaptive
// Gaussian mixture model of the static background. The model only ever sees the
// region, and is rebuilt whenever the region changes size.
type Background struct {
	history      int
	varThreshold float64

	bs     gocv.BackgroundSubtractorMOG2
	kernel gocv.Mat
	size   image.Point
	frames int
}

// NewBackground creates a Background with shadow detection enabled.
func NewBackground() *Background {
	return &Background{
		history:      DefaultHistory,
		varThreshold: DefaultVarThreshold,
		bs:           gocv.NewBackgroundSubtractorMOG2WithParams(DefaultHistory, DefaultVarThreshold, true),
		kernel:       gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3)),
	}
}

// Apply feeds the part of frame inside roi to the background model and returns
// the foreground regions found there. roi must already lie inside frame.
//
// Algorithm:
// 1. Crop the region and update the mixture model to get a foreground mask
//    (the first frame after a reset only seeds the model)
// 2. Opening then closing with a 3x3 ellipse to remove speckle and fill holes
// 3. External contours, keeping those with area above MinRegionArea
// 4. Bounding rectangles translated by the region's top-left corner
func (b *Background) Apply(frame gocv.Mat, roi image.Rectangle) []Region {
	if roi.Empty() {
		return nil
	}

	if roi.Size() != b.size {
		b.resetModel()
		b.size = roi.Size()
	}

	crop := frame.Region(roi)
	defer crop.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	b.bs.Apply(crop, &mask)
	b.frames++

	// The first frame only seeds the model. Every pixel of it is foreground.
	if b.frames == 1 {
		return nil
	}

	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, b.kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, b.kernel)

	return FindRegions(mask, roi.Min)
}

// Frames returns how many frames the current model has seen.
func (b *Background) Frames() int {
	return b.frames
}

// Reset discards the background model.
func (b *Background) Reset() {
	b.resetModel()
	b.size = image.Point{}
}

// Close releases the model. The filter must not be used afterwards.
func (b *Background) Close() {
	b.bs.Close()
	b.kernel.Close()
}

func (b *Background) resetModel() {
	b.bs.Close()
	b.bs = gocv.NewBackgroundSubtractorMOG2WithParams(b.history, b.varThreshold, true)
	b.frames = 0
}

// FindRegions extracts the external contours of a binary mask and returns the
// bounding rectangles of those large enough to keep, shifted by offset.
func FindRegions(mask gocv.Mat, offset image.Point) []Region {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []Region
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if !KeepRegion(area) {
			continue
		}
		regions = append(regions, Region{
			Rect: gocv.BoundingRect(c).Add(offset),
			Area: area,
		})
	}
	return regions
}

// DrawRegions outlines each region on frame and labels it with its area.
func DrawRegions(frame *gocv.Mat, regions []Region) {
	if len(regions) == 0 {
		return
	}
	ensureColor(frame)

	for _, r := range regions {
		gocv.Rectangle(frame, r.Rect, regionColor, 2)

		label := image.Pt(r.Rect.Min.X, r.Rect.Min.Y-5)
		if label.Y < 10 {
			label.Y = r.Rect.Max.Y + 15
		}
		gocv.PutText(frame, fmt.Sprintf("%.0f", r.Area), label, gocv.FontHersheySimplex, 0.5, regionColor, 1)
	}
}
