// Package acquire normalizes the image acquisition channels into a single
// in-memory artifact with a revocable preview handle. Camera capture, file
// picks, drag-and-drop and clipboard paste all converge here.
package acquire

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"coastwatch-server-go/internal/domain/eventbus"
	imagedomain "coastwatch-server-go/internal/domain/image"
	"coastwatch-server-go/internal/domain/report"
	"coastwatch-server-go/internal/platform/errors"
	"coastwatch-server-go/internal/platform/logging"
)

// Source identifies which channel produced an image payload.
type Source string

const (
	SourceCamera    Source = "camera"
	SourceFile      Source = "file"
	SourceDrop      Source = "drop"
	SourceClipboard Source = "clipboard"
)

// Payload is the raw input handed to Acquire by a channel.
type Payload struct {
	Reader   io.Reader
	Filename string
	Declared string
}

// Adapter funnels every acquisition channel through validation and installs
// the result as the single active artifact. A new acquisition started while
// another is still processing wins over the older one at install time.
type Adapter struct {
	pipeline *imagedomain.Pipeline
	logger   *logging.Logger
	bus      evbus.Bus

	mu       sync.Mutex
	current  *report.ImageArtifact
	inflight uint64
}

// NewAdapter constructs the image source adapter.
func NewAdapter(pipeline *imagedomain.Pipeline, bus evbus.Bus, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.Default
	}
	return &Adapter{
		pipeline: pipeline,
		logger:   logger,
		bus:      bus,
	}
}

// Acquire validates a payload and installs it as the active artifact,
// releasing the preview of whatever it replaces. For the clipboard channel
// an empty or non-image payload is ignored without error; explicit picks
// surface the rejection.
//
// The returned artifact is nil without error when the acquisition was
// silently ignored or superseded by a newer one.
func (a *Adapter) Acquire(ctx context.Context, source Source, payload Payload) (*report.ImageArtifact, error) {
	const op = "acquire.Acquire"

	if payload.Reader == nil {
		if source == SourceClipboard {
			a.logger.DebugTag("ACQUIRE", "clipboard paste carried no file, ignoring")
			return nil, nil
		}
		return nil, errors.New(errors.KindMedia, op, "no image payload provided")
	}

	a.mu.Lock()
	a.inflight++
	token := a.inflight
	a.mu.Unlock()

	out, err := a.pipeline.Process(ctx, imagedomain.Input{
		Reader:         payload.Reader,
		DeclaredFormat: formatFromName(payload.Filename, payload.Declared),
		Source:         string(source),
	})
	if err != nil {
		return nil, a.reject(source, op, "image validation failed", err)
	}

	mime := http.DetectContentType(out.Bytes)
	if !strings.HasPrefix(mime, "image/") {
		return nil, a.reject(source, op, "payload is not an image ("+mime+")", nil)
	}

	artifact := &report.ImageArtifact{
		Data:     out.Bytes,
		MIME:     mime,
		Format:   out.Format,
		Size:     int64(len(out.Bytes)),
		Filename: payload.Filename,
		Preview:  report.NewPreviewHandle(nil),
	}

	a.mu.Lock()
	if token != a.inflight {
		// A newer acquisition started while this one was processing.
		a.mu.Unlock()
		artifact.ReleasePreview()
		a.logger.DebugTag("ACQUIRE", "discarding superseded %s acquisition", source)
		return nil, nil
	}
	prev := a.current
	a.current = artifact
	a.mu.Unlock()

	if prev != nil {
		prev.ReleasePreview()
	}

	a.logger.InfoTag("ACQUIRE", "acquired %s image via %s (%d bytes)",
		artifact.Format, source, artifact.Size)
	if a.bus != nil {
		a.bus.Publish(eventbus.EventImageAcquired, artifact)
	}
	return artifact, nil
}

// Current returns the active artifact, or nil when none is held.
func (a *Adapter) Current() *report.ImageArtifact {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Release drops the active artifact and frees its preview handle.
func (a *Adapter) Release() {
	a.mu.Lock()
	prev := a.current
	a.current = nil
	a.inflight++
	a.mu.Unlock()

	if prev != nil {
		prev.ReleasePreview()
	}
}

func (a *Adapter) reject(source Source, op, msg string, cause error) error {
	if a.bus != nil {
		a.bus.Publish(eventbus.EventImageRejected, string(source), msg)
	}
	// Pasting non-image content is an everyday action, not a failure the
	// user needs to hear about.
	if source == SourceClipboard {
		a.logger.DebugTag("ACQUIRE", "clipboard payload skipped: %s", msg)
		return nil
	}
	a.logger.WarnTag("ACQUIRE", "%s payload rejected: %s", source, msg)
	if cause != nil {
		return errors.Wrap(errors.KindMedia, op, msg, cause)
	}
	return errors.New(errors.KindMedia, op, msg)
}

// formatFromName derives the declared format from the filename extension
// when the channel did not state one.
func formatFromName(name, declared string) string {
	if declared != "" {
		return declared
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 && idx < len(name)-1 {
		return strings.ToLower(name[idx+1:])
	}
	return ""
}
