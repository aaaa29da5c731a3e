// Package report defines the data model shared across the acquisition,
// location, and submission stages of the pollution report pipeline.
package report

import (
	"math"
	"sync"

	"github.com/google/uuid"

	"coastwatch-server-go/internal/platform/errors"
)

// LabelNoWaste is the distinguished classification meaning no pollution found.
const LabelNoWaste = "no_waste"

// CoordinateSource tags where a coordinate came from.
type CoordinateSource string

const (
	SourceMetadata CoordinateSource = "metadata"
	SourceDevice   CoordinateSource = "device"
	SourceManual   CoordinateSource = "manual"
)

// PreviewHandle is a revocable reference to the in-memory preview of an
// acquired image. Handles are single-owner; releasing twice is a no-op.
type PreviewHandle struct {
	id       string
	mu       sync.Mutex
	released bool
	onClose  func()
}

// NewPreviewHandle creates a handle around the given release callback.
func NewPreviewHandle(onClose func()) *PreviewHandle {
	return &PreviewHandle{
		id:      uuid.NewString(),
		onClose: onClose,
	}
}

// ID returns the handle identifier.
func (h *PreviewHandle) ID() string {
	return h.id
}

// Release frees the preview resource. Safe to call multiple times.
func (h *PreviewHandle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	if h.onClose != nil {
		h.onClose()
	}
}

// Released reports whether the handle has been revoked.
func (h *PreviewHandle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// ImageArtifact is the normalized product of any acquisition channel.
type ImageArtifact struct {
	Data     []byte
	MIME     string
	Format   string
	Size     int64
	Filename string
	Preview  *PreviewHandle
}

// ReleasePreview revokes the artifact's preview handle if present.
func (a *ImageArtifact) ReleasePreview() {
	if a != nil && a.Preview != nil {
		a.Preview.Release()
	}
}

// Coordinate is a resolved geographic position in decimal degrees.
type Coordinate struct {
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	Source    CoordinateSource `json:"source"`
	PlaceName string           `json:"place_name,omitempty"`
}

// Round6 rounds a decimal degree value to 6 decimal places (~0.11 m).
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// NewCoordinate validates and rounds a raw latitude/longitude pair.
func NewCoordinate(lat, lon float64, source CoordinateSource) (Coordinate, error) {
	if lat < -90 || lat > 90 {
		return Coordinate{}, errors.New(errors.KindLocation, "coordinate", "latitude out of range")
	}
	if lon < -180 || lon > 180 {
		return Coordinate{}, errors.New(errors.KindLocation, "coordinate", "longitude out of range")
	}
	return Coordinate{
		Latitude:  Round6(lat),
		Longitude: Round6(lon),
		Source:    source,
	}, nil
}

// ModelVote is one entry of the optional per-model breakdown on a result.
type ModelVote struct {
	Model      string  `json:"model"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// SubmissionResult is the backend classification record for a stored report.
// Immutable once received; discarded on pipeline reset.
type SubmissionResult struct {
	ID             uint        `json:"id,omitempty"`
	Label          string      `json:"label"`
	PollutionName  string      `json:"pollution_name"`
	PollutionIcon  string      `json:"pollution_icon"`
	PollutionColor string      `json:"pollution_color"`
	Confidence     float64     `json:"confidence"`
	Latitude       float64     `json:"latitude"`
	Longitude      float64     `json:"longitude"`
	ImagePath      string      `json:"image_path,omitempty"`
	Votes          []ModelVote `json:"votes,omitempty"`
}

// NoWaste reports whether the result carries the no-pollution label.
func (r *SubmissionResult) NoWaste() bool {
	return r != nil && r.Label == LabelNoWaste
}

// Draft aggregates the in-progress report. It is owned by the submission
// orchestrator; the generation counter defeats stale asynchronous writes.
type Draft struct {
	Artifact    *ImageArtifact
	Coordinate  *Coordinate
	Description string
	Generation  uint64
}

// Complete reports whether the draft satisfies the submission guard.
func (d *Draft) Complete() bool {
	return d != nil && d.Artifact != nil && len(d.Artifact.Data) > 0 && d.Coordinate != nil
}
