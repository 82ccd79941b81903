package decode

import (
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// DefaultLanguage is the Tesseract language used when none is configured.
const DefaultLanguage = "eng"

// TextDecoder reads printed text with Tesseract OCR. Any non-blank text counts
// as a payload.
type TextDecoder struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTextDecoder creates a TextDecoder for the given Tesseract language.
func NewTextDecoder(language string) (*TextDecoder, error) {
	if language == "" {
		language = DefaultLanguage
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	return &TextDecoder{client: client}, nil
}

// Decode implements Decoder.
func (d *TextDecoder) Decode(gray gocv.Mat) (string, bool, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, gray)
	if err != nil {
		return "", false, fmt.Errorf("encode region: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", false, fmt.Errorf("set OCR image: %w", err)
	}

	text, err := d.client.Text()
	if err != nil {
		return "", false, fmt.Errorf("extract text: %w", err)
	}

	text = strings.TrimSpace(text)
	return text, text != "", nil
}

// Close releases the Tesseract client.
func (d *TextDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client.Close()
}
