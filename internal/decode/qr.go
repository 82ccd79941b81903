package decode

import (
	"sync"

	"gocv.io/x/gocv"
)

// QRDecoder decodes QR codes with the OpenCV QR code detector.
type QRDecoder struct {
	mu       sync.Mutex
	detector gocv.QRCodeDetector
}

// NewQRDecoder creates a QRDecoder.
func NewQRDecoder() *QRDecoder {
	return &QRDecoder{detector: gocv.NewQRCodeDetector()}
}

// Decode implements Decoder.
func (d *QRDecoder) Decode(gray gocv.Mat) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	payload := d.detector.DetectAndDecode(gray, &points, &straight)
	return payload, payload != "", nil
}

// Close releases the detector.
func (d *QRDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detector.Close()
}
