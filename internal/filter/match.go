package filter

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/decode"
)

// MatchResult is the outcome of one code-region match.
type MatchResult struct {
	Matched bool            `json:"matched"`
	Payload string          `json:"payload,omitempty"`
	Region  image.Rectangle `json:"region"`
	Err     error           `json:"-"`
}

// Matcher looks for a machine-readable code inside the region of interest.
type Matcher struct {
	decoder decode.Decoder
}

// NewMatcher creates a Matcher backed by decoder. A nil decoder never matches.
func NewMatcher(decoder decode.Decoder) *Matcher {
	return &Matcher{decoder: decoder}
}

// Match crops roi out of frame, clamped to the frame, converts it to grayscale
// and asks the decoder for a payload. A region with no area after clamping is
// a miss, as is a decoder that finds nothing.
func (m *Matcher) Match(frame gocv.Mat, roi config.ROI) MatchResult {
	rect, ok := ClampROI(roi, frame.Cols(), frame.Rows())
	if !ok || m.decoder == nil {
		return MatchResult{Region: rect}
	}

	crop := frame.Region(rect)
	defer crop.Close()

	gray := Grayscale(crop)
	defer gray.Close()

	payload, found, err := m.decoder.Decode(gray)
	if err != nil {
		return MatchResult{Region: rect, Err: err}
	}

	return MatchResult{
		Matched: found && payload != "",
		Payload: payload,
		Region:  rect,
	}
}
