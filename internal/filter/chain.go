package filter

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/decode"
)

// Result describes what the chain found in one frame, beside the output image.
type Result struct {
	// MotionMask is true when the output is a frame-difference mask. The
	// background filter replaces the mask with the colour frame.
	MotionMask bool `json:"motion_mask"`
	// MotionPixels counts the non-zero pixels of the motion mask.
	MotionPixels int `json:"motion_pixels"`
	// Regions are the foreground regions found by the background filter.
	Regions []Region `json:"regions,omitempty"`
	// Matching is true when the code matching variant ran for this frame.
	Matching bool `json:"matching"`
	// Match is the outcome of code matching.
	Match MatchResult `json:"match"`
}

// Chain applies the configured filters to frames in arrival order. It owns the
// cross-frame state of the stateful filters and must only be used by one goroutine.
type Chain struct {
	diff       *FrameDiff
	background *Background
	matcher    *Matcher
}

// NewChain creates a Chain. decoder backs the code matching variant and may be nil.
func NewChain(decoder decode.Decoder) *Chain {
	return &Chain{
		diff:       NewFrameDiff(),
		background: NewBackground(),
		matcher:    NewMatcher(decoder),
	}
}

// Process applies the filters enabled in s to src and returns a new mat the
// caller owns. src is not modified.
//
// Order: flip, blur, grayscale, frame-difference motion, background regions,
// overlay. Background regions are found in and drawn on the flipped and blurred
// colour frame, which then becomes the output. When matching is enabled it
// replaces everything before the overlay.
func (c *Chain) Process(src gocv.Mat, s config.Snapshot) (gocv.Mat, Result) {
	var res Result

	cur := src.Clone()
	replace := func(next gocv.Mat) {
		cur.Close()
		cur = next
	}

	if s.Match {
		res.Matching = true
		res.Match = c.matcher.Match(cur, s.ROI)
	} else {
		if s.Flip {
			replace(FlipHorizontal(cur))
		}
		if s.Blur {
			replace(GaussianBlur(cur, s.BlurKernel))
		}
		// The background filter works on the colour frame as it stood
		// before grayscale and motion replaced it.
		var color gocv.Mat
		if s.Background {
			color = cur.Clone()
			ensureColor(&color)
		}
		if s.Gray {
			replace(Grayscale(cur))
		}

		switch {
		case s.Motion:
			iterations := 0
			if s.Dilate {
				iterations = s.DilateIterations
			}
			out, isMask := c.diff.Apply(cur, iterations)
			replace(out)
			if isMask {
				res.MotionMask = true
				res.MotionPixels = gocv.CountNonZero(cur)
			}
		case s.Gray && s.GrayTracksMotion:
			c.diff.Remember(cur)
		}

		if s.Background {
			if roi, ok := ClampROI(s.ROI, color.Cols(), color.Rows()); ok {
				res.Regions = c.background.Apply(color, roi)
				DrawRegions(&color, res.Regions)
			}
			replace(color)
			res.MotionMask = false
		}
	}

	if s.Overlay {
		roi, label := overlayGeometry(s.ROI, cur.Cols(), cur.Rows())
		DrawOverlay(&cur, roi, OverlayLabel(label, res.Matching, res.Match.Matched), overlayActive(res))
	}

	return cur, res
}

// overlayGeometry returns the clamped rectangle to draw and the rectangle to
// name in the label. A region that clamps to nothing draws no rectangle but
// is still labelled with its configured corners.
func overlayGeometry(r config.ROI, width, height int) (draw, label image.Rectangle) {
	draw, ok := ClampROI(r, width, height)
	if !ok {
		return image.Rectangle{}, r.Rect()
	}
	return draw, draw
}

// overlayActive decides the overlay colour: a match when matching, otherwise
// any foreground region inside the ROI.
func overlayActive(res Result) bool {
	if res.Matching {
		return res.Match.Matched
	}
	return len(res.Regions) > 0
}

// Reset forgets all cross-frame state.
func (c *Chain) Reset() {
	c.diff.Reset()
	c.background.Reset()
}

// Close releases every filter. The chain must not be used afterwards.
func (c *Chain) Close() {
	c.diff.Close()
	c.background.Close()
}
