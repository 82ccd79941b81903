package filter

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/framepipe/testdata"
)

func TestKeepRegion(t *testing.T) {
	tests := []struct {
		area float64
		want bool
	}{
		{area: 0, want: false},
		{area: 499, want: false},
		{area: 500, want: false},
		{area: 501, want: true},
		{area: 10000, want: true},
	}

	for _, tt := range tests {
		if got := KeepRegion(tt.area); got != tt.want {
			t.Errorf("KeepRegion(%v) = %v, want %v", tt.area, got, tt.want)
		}
	}
}

func TestFindRegions_AreaBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	white := color.RGBA{R: 255, G: 255, B: 255, A: 0}

	// A filled rectangle of (w+1)x(h+1) pixels has a contour enclosing w*h.
	tests := []struct {
		name   string
		fill   image.Rectangle
		wantOK bool
	}{
		{name: "area 500 excluded", fill: image.Rect(10, 10, 31, 36), wantOK: false},
		{name: "area 501 included", fill: image.Rect(60, 10, 64, 178), wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask := testdata.SolidGray(200, 200, 0)
			defer mask.Close()
			gocv.Rectangle(&mask, tt.fill, white, -1)

			regions := FindRegions(mask, image.Pt(0, 0))
			if got := len(regions) == 1; got != tt.wantOK {
				t.Fatalf("FindRegions() returned %d regions (%+v), want kept = %v", len(regions), regions, tt.wantOK)
			}
		})
	}
}

func TestFindRegions_Offset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	mask := testdata.SolidGray(200, 200, 0)
	defer mask.Close()
	gocv.Rectangle(&mask, image.Rect(20, 30, 70, 90), color.RGBA{R: 255, G: 255, B: 255, A: 0}, -1)

	regions := FindRegions(mask, image.Pt(100, 50))
	if len(regions) != 1 {
		t.Fatalf("FindRegions() returned %d regions, want 1", len(regions))
	}

	want := image.Rect(120, 80, 170, 140)
	if regions[0].Rect != want {
		t.Errorf("region = %v, want %v", regions[0].Rect, want)
	}
}

func TestBackground_SquareInsideROI(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	const width, height = 640, 480
	roi := image.Rect(100, 80, 540, 400)
	square := image.Rect(250, 150, 330, 230)

	b := NewBackground()
	defer b.Close()

	background := testdata.SolidFrame(width, height, 0)
	defer background.Close()

	for i := 0; i < 10; i++ {
		if regions := b.Apply(background, roi); len(regions) != 0 {
			t.Fatalf("priming frame %d produced regions %+v", i, regions)
		}
	}

	frame := testdata.SquareFrame(width, height, square)
	defer frame.Close()

	regions := b.Apply(frame, roi)
	if len(regions) != 1 {
		t.Fatalf("got %d regions (%+v), want 1", len(regions), regions)
	}

	got := regions[0].Rect
	const tolerance = 3
	if abs(got.Min.X-square.Min.X) > tolerance || abs(got.Min.Y-square.Min.Y) > tolerance ||
		abs(got.Max.X-square.Max.X) > tolerance || abs(got.Max.Y-square.Max.Y) > tolerance {
		t.Errorf("region = %v, want %v within %d px", got, square, tolerance)
	}
	if regions[0].Area <= MinRegionArea {
		t.Errorf("region area = %v, want > %v", regions[0].Area, MinRegionArea)
	}
}

func TestBackground_SquareOutsideROIIgnored(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	roi := image.Rect(0, 0, 200, 200)

	b := NewBackground()
	defer b.Close()

	background := testdata.SolidFrame(640, 480, 0)
	defer background.Close()
	for i := 0; i < 10; i++ {
		b.Apply(background, roi)
	}

	frame := testdata.SquareFrame(640, 480, image.Rect(400, 300, 500, 400))
	defer frame.Close()

	if regions := b.Apply(frame, roi); len(regions) != 0 {
		t.Errorf("motion outside the ROI produced regions %+v", regions)
	}
}

func TestBackground_ROIResizeRebuildsModel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	b := NewBackground()
	defer b.Close()

	frame := testdata.SolidFrame(320, 240, 0)
	defer frame.Close()

	b.Apply(frame, image.Rect(0, 0, 100, 100))
	b.Apply(frame, image.Rect(0, 0, 100, 100))
	if b.Frames() != 2 {
		t.Fatalf("Frames() = %d, want 2", b.Frames())
	}

	b.Apply(frame, image.Rect(0, 0, 150, 100))
	if b.Frames() != 1 {
		t.Errorf("Frames() after resize = %d, want 1", b.Frames())
	}

	if regions := b.Apply(frame, image.Rectangle{}); regions != nil {
		t.Errorf("empty ROI returned %+v", regions)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
