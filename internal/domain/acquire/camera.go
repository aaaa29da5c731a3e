package acquire

import (
	"bytes"
	"context"
	"sync"

	"coastwatch-server-go/internal/domain/report"
	"coastwatch-server-go/internal/platform/errors"
	"coastwatch-server-go/internal/platform/logging"
)

// Device abstracts a live video capture device. Implementations wrap the
// actual hardware or remote stream.
type Device interface {
	// Open claims the underlying hardware for a live preview.
	Open(ctx context.Context) error
	// Capture reads a single still frame at the device's native resolution.
	Capture(ctx context.Context) ([]byte, error)
	// Close frees every resource held by Open. Must be safe to call twice.
	Close() error
}

// CameraManager enforces the exclusive-handle rule: at most one open
// capture session exists, and opening a new one closes the prior session
// first.
type CameraManager struct {
	adapter *Adapter
	logger  *logging.Logger

	mu     sync.Mutex
	active *CameraSession
}

// NewCameraManager constructs a camera manager bound to the adapter.
func NewCameraManager(adapter *Adapter, logger *logging.Logger) *CameraManager {
	if logger == nil {
		logger = logging.Default
	}
	return &CameraManager{adapter: adapter, logger: logger}
}

// StartCapture opens the device and returns a live session. Any session
// that was still open is closed before the new device is claimed.
func (m *CameraManager) StartCapture(ctx context.Context, device Device) (*CameraSession, error) {
	const op = "acquire.StartCapture"

	m.mu.Lock()
	prev := m.active
	m.active = nil
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	if err := device.Open(ctx); err != nil {
		return nil, errors.Wrap(errors.KindMedia, op, "camera access denied", err)
	}

	session := &CameraSession{
		device:  device,
		adapter: m.adapter,
		manager: m,
		logger:  m.logger,
	}

	m.mu.Lock()
	m.active = session
	m.mu.Unlock()

	m.logger.InfoTag("ACQUIRE", "camera session opened")
	return session, nil
}

// CloseActive shuts down the active session if one exists. Used when the
// draft resets or the hosting surface goes away.
func (m *CameraManager) CloseActive() {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.mu.Unlock()

	if active != nil {
		active.Close()
	}
}

func (m *CameraManager) sessionClosed(s *CameraSession) {
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
}

// CameraSession is a scoped hold on the capture device. The device is
// released on every exit path: successful capture, capture failure, and
// explicit close.
type CameraSession struct {
	device  Device
	adapter *Adapter
	manager *CameraManager
	logger  *logging.Logger

	closeOnce sync.Once
}

// Capture grabs one frame, installs it through the adapter and closes the
// session. The device is released even when the frame is rejected.
func (s *CameraSession) Capture(ctx context.Context) (*report.ImageArtifact, error) {
	const op = "acquire.Capture"
	defer s.Close()

	frame, err := s.device.Capture(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.KindMedia, op, "frame capture failed", err)
	}

	return s.adapter.Acquire(ctx, SourceCamera, Payload{
		Reader:   bytes.NewReader(frame),
		Filename: "camera-capture.jpg",
	})
}

// Close releases the device. Idempotent.
func (s *CameraSession) Close() {
	s.closeOnce.Do(func() {
		if err := s.device.Close(); err != nil {
			s.logger.WarnTag("ACQUIRE", "camera close: %v", err)
		} else {
			s.logger.InfoTag("ACQUIRE", "camera session released")
		}
		if s.manager != nil {
			s.manager.sessionClosed(s)
		}
	})
}
