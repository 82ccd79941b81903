package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File is the on-disk pipeline configuration. Every field is optional so a
// partial file only overrides what it names.
type File struct {
	Filters          map[string]bool `json:"filters,omitempty"`
	BlurKernel       *[2]int         `json:"blur_kernel,omitempty"`
	DilateIterations *int            `json:"dilate_iterations,omitempty"`
	ROI              *ROI            `json:"roi,omitempty"`

	BufferSize    *int    `json:"buffer_size,omitempty"`
	CapturePolicy *string `json:"capture_policy,omitempty"`
	OutputPolicy  *string `json:"output_policy,omitempty"`
	PutTimeout    *string `json:"put_timeout,omitempty"` // duration string like "1s"
	GetTimeout    *string `json:"get_timeout,omitempty"`
}

const maxFileSize = 1 << 20

// LoadFile reads and validates a JSON configuration file.
func LoadFile(path string) (*File, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every field that is set.
func (f *File) Validate() error {
	var errs []error

	for name := range f.Filters {
		if _, err := ParseFilter(name); err != nil {
			errs = append(errs, err)
		}
	}
	if f.BlurKernel != nil {
		w, h := f.BlurKernel[0], f.BlurKernel[1]
		if w <= 0 || h <= 0 || w%2 == 0 || h%2 == 0 {
			errs = append(errs, fmt.Errorf("%w: got %dx%d", ErrInvalidKernel, w, h))
		}
	}
	if f.DilateIterations != nil && *f.DilateIterations < 1 {
		errs = append(errs, fmt.Errorf("dilate_iterations must be at least 1, got %d", *f.DilateIterations))
	}
	if f.BufferSize != nil && *f.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("buffer_size must be at least 1, got %d", *f.BufferSize))
	}
	for name, d := range map[string]*string{"put_timeout": f.PutTimeout, "get_timeout": f.GetTimeout} {
		if d == nil {
			continue
		}
		if _, err := time.ParseDuration(*d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// Apply writes the pipeline settings of f into p.
func (f *File) Apply(p *Pipeline) error {
	for name, on := range f.Filters {
		filter, err := ParseFilter(name)
		if err != nil {
			return err
		}
		if err := p.SetEnabled(filter, on); err != nil {
			return err
		}
	}
	if f.BlurKernel != nil {
		if err := p.SetBlurKernel(f.BlurKernel[0], f.BlurKernel[1]); err != nil {
			return err
		}
	}
	if f.DilateIterations != nil {
		p.SetDilateIterations(*f.DilateIterations)
	}
	if f.ROI != nil {
		if err := p.SetROI(*f.ROI); err != nil {
			return err
		}
	}
	return nil
}

// Duration parses an optional duration field, returning fallback when unset.
func Duration(s *string, fallback time.Duration) time.Duration {
	if s == nil {
		return fallback
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fallback
	}
	return d
}
