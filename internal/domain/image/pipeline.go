// Package image normalizes raw image payloads arriving from any acquisition
// channel into validated in-memory artifacts.
package image

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"coastwatch-server-go/internal/platform/config"
	"coastwatch-server-go/internal/platform/logging"
)

// Pipeline orchestrates streaming ingestion and validation of image payloads.
type Pipeline struct {
	validator *SecurityValidator
	logger    *logging.Logger
	security  *config.SecurityConfig
}

// Options configures the pipeline behaviour.
type Options struct {
	Security *config.SecurityConfig
	Logger   *logging.Logger
}

// Input describes a streaming image payload.
type Input struct {
	Reader         io.Reader
	DeclaredFormat string
	Source         string
}

// Output contains the sanitised artefacts produced by the pipeline.
type Output struct {
	Bytes      []byte
	Format     string
	Validation ValidationResult
}

// NewPipeline constructs a streaming image pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Security == nil {
		return nil, fmt.Errorf("security config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default
	}

	validator := NewSecurityValidator(opts.Security, opts.Logger)

	return &Pipeline{
		validator: validator,
		logger:    opts.Logger,
		security:  opts.Security,
	}, nil
}

// Process streams the input through size limiting and validation.
func (p *Pipeline) Process(ctx context.Context, input Input) (*Output, error) {
	if input.Reader == nil {
		return nil, fmt.Errorf("image reader is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	maxSize := p.security.MaxFileSize
	if maxSize <= 0 {
		maxSize = 5 * 1024 * 1024
	}

	limited := &io.LimitedReader{
		R: input.Reader,
		N: maxSize + 1,
	}

	rawBuf := bytes.NewBuffer(make([]byte, 0, 32*1024))
	if _, err := io.Copy(rawBuf, limited); err != nil {
		return nil, fmt.Errorf("stream image bytes: %w", err)
	}

	if limited.N <= 0 {
		return nil, fmt.Errorf("image exceeds maximum size of %d bytes", maxSize)
	}

	rawBytes := rawBuf.Bytes()
	validation := p.validator.ValidateBytes(rawBytes, input.DeclaredFormat)
	if !validation.IsValid {
		if validation.Error != nil {
			return nil, validation.Error
		}
		return nil, fmt.Errorf("image validation failed")
	}

	sanitised := make([]byte, len(rawBytes))
	copy(sanitised, rawBytes)

	return &Output{
		Bytes:      sanitised,
		Format:     validation.Format,
		Validation: validation,
	}, nil
}
