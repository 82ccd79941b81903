// Package capture reads raw frames from a camera device using GoCV (OpenCV)
// and feeds them into the pipeline.
package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrDeviceUnavailable is returned when the device cannot be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrEndOfStream is returned when the device stops delivering frames.
	ErrEndOfStream = errors.New("end of stream")
	// ErrUnknownBackend is returned for a backend name that is not supported.
	ErrUnknownBackend = errors.New("unknown capture backend")
)

// Backend selects the OpenCV video I/O backend used to open the device.
type Backend string

const (
	BackendAny          Backend = "any"
	BackendDShow        Backend = "dshow"
	BackendMSMF         Backend = "msmf"
	BackendV4L2         Backend = "v4l2"
	BackendAVFoundation Backend = "avfoundation"
	BackendGStreamer    Backend = "gstreamer"
)

var backendAPIs = map[Backend]gocv.VideoCaptureAPI{
	BackendAny:          gocv.VideoCaptureAny,
	BackendDShow:        gocv.VideoCaptureDshow,
	BackendMSMF:         gocv.VideoCaptureMSMF,
	BackendV4L2:         gocv.VideoCaptureV4L2,
	BackendAVFoundation: gocv.VideoCaptureAVFoundation,
	BackendGStreamer:    gocv.VideoCaptureGstreamer,
}

// ParseBackend parses a backend name. The empty string means BackendAny.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	if b == "" {
		return BackendAny, nil
	}
	if _, ok := backendAPIs[b]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
	return b, nil
}

// Config describes which device to open and how.
type Config struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
	Backend  Backend
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		DeviceID: 0,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		FPS:      DefaultFPS,
		Backend:  BackendAny,
	}
}

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	IsOpen() bool
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	config  Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewCamera creates a new Camera. Zero fields of config fall back to DefaultConfig.
func NewCamera(config Config) Camera {
	def := DefaultConfig()
	if config.Width <= 0 {
		config.Width = def.Width
	}
	if config.Height <= 0 {
		config.Height = def.Height
	}
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	if config.Backend == "" {
		config.Backend = def.Backend
	}

	return &cameraImpl{config: config}
}

// Open opens the device and requests the configured resolution. The device
// may deliver a different size; frames are used as delivered.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	api, ok := backendAPIs[c.config.Backend]
	if !ok {
		return fmt.Errorf("%w: %w: %q", ErrDeviceUnavailable, ErrUnknownBackend, c.config.Backend)
	}

	capture, err := gocv.OpenVideoCaptureWithAPI(c.config.DeviceID, api)
	if err != nil {
		return fmt.Errorf("%w: device %d: %w", ErrDeviceUnavailable, c.config.DeviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: device %d did not open", ErrDeviceUnavailable, c.config.DeviceID)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.config.FPS))

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, fmt.Errorf("%w: read failed", ErrEndOfStream)
	}

	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: empty frame", ErrEndOfStream)
	}

	return &mat, nil
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
