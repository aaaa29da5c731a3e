// Package classify assigns pollution labels to report images.
package classify

import (
	"context"
	"fmt"

	"coastwatch-server-go/internal/platform/config"
	"coastwatch-server-go/internal/platform/logging"
)

// Result is the outcome of classifying a single image.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Votes      []Vote  `json:"votes,omitempty"`
}

// Vote records one model's opinion when the classifier aggregates
// several models.
type Vote struct {
	Model      string  `json:"model"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier labels an in-memory image.
type Classifier interface {
	Classify(ctx context.Context, image []byte, filename string) (Result, error)
	Close() error
}

// New constructs the classifier named by the configuration.
func New(cfg *config.ClassifierConfig, logger *logging.Logger) (Classifier, error) {
	if logger == nil {
		logger = logging.Default
	}
	switch cfg.Type {
	case "", "static":
		return NewStatic(logger), nil
	case "remote":
		return NewRemote(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown classifier type: %s", cfg.Type)
	}
}
