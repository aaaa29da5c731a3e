package classify

import (
	"bytes"
	"context"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"coastwatch-server-go/internal/platform/logging"
)

// StaticClassifier is the fallback used when no model endpoint is
// configured. Every decodable image is labelled as generic solid waste
// with zero confidence so downstream consumers can tell it apart from a
// real prediction.
type StaticClassifier struct {
	logger *logging.Logger
}

// NewStatic constructs the fallback classifier.
func NewStatic(logger *logging.Logger) *StaticClassifier {
	return &StaticClassifier{logger: logger}
}

// Classify returns the fallback label. Undecodable payloads get the same
// label rather than an error, matching how a missing model behaves.
func (c *StaticClassifier) Classify(ctx context.Context, img []byte, filename string) (Result, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(img)); err != nil {
		c.logger.WarnTag("CLASSIFY", "image %s is not decodable, using fallback label", filename)
	} else {
		c.logger.InfoTag("CLASSIFY", "no model configured, labelling %s as fallback", filename)
	}
	return Result{Label: LabelFallback, Confidence: 0.0}, nil
}

// Close implements Classifier.
func (c *StaticClassifier) Close() error { return nil }
