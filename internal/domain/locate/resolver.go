// Package locate resolves the report coordinate through the fallback chain
// of embedded photo metadata, device geolocation and manual entry.
package locate

import (
	"context"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"coastwatch-server-go/internal/client"
	"coastwatch-server-go/internal/domain/eventbus"
	"coastwatch-server-go/internal/domain/report"
	"coastwatch-server-go/internal/platform/errors"
	"coastwatch-server-go/internal/platform/logging"
)

// Extractor asks the backend whether an image carries embedded coordinates.
type Extractor interface {
	ExtractGPS(ctx context.Context, image []byte, filename string) (client.GPSResult, error)
}

// Geolocator produces a single-shot device position.
type Geolocator interface {
	CurrentPosition(ctx context.Context) (lat, lon float64, err error)
}

// PlaceNamer annotates a coordinate with a human-readable name.
type PlaceNamer interface {
	ReverseLookup(ctx context.Context, lat, lon float64) (string, error)
}

// Resolver owns the draft coordinate. Every successful resolution
// overwrites whatever coordinate exists; the latest write wins regardless
// of source rank. A generation counter discards resolutions that finish
// after the image they were computed for has been replaced.
type Resolver struct {
	extractor Extractor
	locator   Geolocator
	namer     PlaceNamer
	bus       evbus.Bus
	logger    *logging.Logger

	mu         sync.Mutex
	coord      *report.Coordinate
	generation uint64
	lastErr    string
}

// NewResolver constructs the location resolver. locator and namer may be
// nil when the deployment has no device positioning or no geocoder.
func NewResolver(extractor Extractor, locator Geolocator, namer PlaceNamer, bus evbus.Bus, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default
	}
	return &Resolver{
		extractor: extractor,
		locator:   locator,
		namer:     namer,
		bus:       bus,
		logger:    logger,
	}
}

// Invalidate discards the current coordinate and marks every in-flight
// resolution stale. Called when the image is replaced or the draft resets.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.generation++
	r.coord = nil
	r.lastErr = ""
	r.mu.Unlock()
}

// Coordinate returns a copy of the current coordinate, or nil.
func (r *Resolver) Coordinate() *report.Coordinate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.coord == nil {
		return nil
	}
	c := *r.coord
	return &c
}

// LastError returns the user-visible location error, if any.
func (r *Resolver) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// ResolveFromImage sends the artifact to the metadata extraction service
// and adopts embedded coordinates when present. Extraction failures
// degrade to "no data found" and never block the pipeline. The result is
// discarded when the image was replaced while the call was in flight.
func (r *Resolver) ResolveFromImage(ctx context.Context, artifact *report.ImageArtifact) *report.Coordinate {
	if artifact == nil || len(artifact.Data) == 0 {
		return nil
	}

	r.mu.Lock()
	gen := r.generation
	r.mu.Unlock()

	result, err := r.extractor.ExtractGPS(ctx, artifact.Data, artifact.Filename)
	if err != nil {
		r.logger.WarnTag("LOCATE", "metadata extraction failed, continuing without: %v", err)
		return nil
	}
	if !result.HasGPS {
		r.logger.InfoTag("LOCATE", "image carries no embedded coordinates")
		return nil
	}

	coord, err := report.NewCoordinate(result.Latitude, result.Longitude, report.SourceMetadata)
	if err != nil {
		r.logger.WarnTag("LOCATE", "embedded coordinates out of range: %v", err)
		return nil
	}

	if !r.apply(gen, coord) {
		r.logger.DebugTag("LOCATE", "discarding stale metadata coordinate")
		return nil
	}
	r.annotateAsync(gen, coord)
	return &coord
}

// ResolveFromDevice requests a single-shot device position. Success
// overwrites any existing coordinate and clears the error state. A denial
// records a recoverable error without touching an existing coordinate.
func (r *Resolver) ResolveFromDevice(ctx context.Context) (*report.Coordinate, error) {
	const op = "locate.ResolveFromDevice"

	if r.locator == nil {
		return nil, errors.New(errors.KindLocation, op, "no geolocation source available")
	}

	r.mu.Lock()
	gen := r.generation
	r.mu.Unlock()

	lat, lon, err := r.locator.CurrentPosition(ctx)
	if err != nil {
		r.mu.Lock()
		r.lastErr = "location unavailable"
		r.mu.Unlock()
		if r.bus != nil {
			r.bus.Publish(eventbus.EventLocationDenied, err.Error())
		}
		return nil, errors.Wrap(errors.KindLocation, op, "device position unavailable", err)
	}

	coord, err := report.NewCoordinate(lat, lon, report.SourceDevice)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.coord = &coord
	r.lastErr = ""
	r.mu.Unlock()

	r.publish(coord)
	r.annotateAsync(gen, coord)
	return &coord, nil
}

// SetManual installs a user-entered coordinate.
func (r *Resolver) SetManual(lat, lon float64) (*report.Coordinate, error) {
	coord, err := report.NewCoordinate(lat, lon, report.SourceManual)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.coord = &coord
	r.lastErr = ""
	r.mu.Unlock()

	r.publish(coord)
	return &coord, nil
}

// apply installs a coordinate if its generation is still current.
func (r *Resolver) apply(gen uint64, coord report.Coordinate) bool {
	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return false
	}
	r.coord = &coord
	r.lastErr = ""
	r.mu.Unlock()

	r.publish(coord)
	return true
}

// annotateAsync performs the best-effort place name lookup. Failures are
// swallowed: the coordinate is shown without a name.
func (r *Resolver) annotateAsync(gen uint64, coord report.Coordinate) {
	if r.namer == nil {
		return
	}
	go func() {
		name, err := r.namer.ReverseLookup(context.Background(), coord.Latitude, coord.Longitude)
		if err != nil {
			r.logger.DebugTag("LOCATE", "place name lookup failed: %v", err)
			return
		}

		r.mu.Lock()
		if gen == r.generation && r.coord != nil &&
			r.coord.Latitude == coord.Latitude && r.coord.Longitude == coord.Longitude {
			r.coord.PlaceName = name
		}
		r.mu.Unlock()
	}()
}

func (r *Resolver) publish(coord report.Coordinate) {
	r.logger.InfoTag("LOCATE", "coordinate resolved from %s: %.6f, %.6f",
		coord.Source, coord.Latitude, coord.Longitude)
	if r.bus != nil {
		r.bus.Publish(eventbus.EventCoordinateResolved, eventbus.CoordinateEventData{
			Latitude:  coord.Latitude,
			Longitude: coord.Longitude,
			Source:    string(coord.Source),
		})
	}
}
