// Package decode provides the capabilities used to read machine-readable
// content out of an image region.
package decode

import (
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// Decoder reads a payload from a grayscale image region.
type Decoder interface {
	// Decode returns the decoded payload and whether anything was found.
	// Finding nothing is not an error.
	Decode(gray gocv.Mat) (payload string, found bool, err error)

	// Close releases any resources held by the decoder.
	Close() error
}

// Kind names a decoder implementation.
type Kind string

const (
	KindQR   Kind = "qr"
	KindText Kind = "text"
	KindNone Kind = "none"
)

// New creates a decoder of the given kind. language is only used by the text decoder.
func New(kind Kind, language string) (Decoder, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindQR, "":
		return NewQRDecoder(), nil
	case KindText:
		d, err := NewTextDecoder(language)
		if err != nil {
			return nil, err
		}
		return d, nil
	case KindNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown decoder %q", kind)
	}
}
