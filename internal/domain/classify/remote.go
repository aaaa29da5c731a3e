package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"coastwatch-server-go/internal/platform/config"
	"coastwatch-server-go/internal/platform/errors"
	"coastwatch-server-go/internal/platform/logging"
)

// RemoteClassifier sends images to an external model endpoint over HTTP.
type RemoteClassifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logging.Logger
}

// NewRemote constructs a classifier backed by a remote model service.
func NewRemote(cfg *config.ClassifierConfig, logger *logging.Logger) (*RemoteClassifier, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.KindConfig, "classify.NewRemote", "classifier url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteClassifier{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type remoteResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Votes      []Vote  `json:"votes"`
}

// Classify posts the image as multipart form data and decodes the
// prediction. A failing endpoint degrades to the fallback label so one
// flaky model service does not block report submission.
func (c *RemoteClassifier) Classify(ctx context.Context, img []byte, filename string) (Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindTransport, "classify.Classify", "build multipart body", err)
	}
	if _, err := part.Write(img); err != nil {
		return Result{}, errors.Wrap(errors.KindTransport, "classify.Classify", "write image part", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, errors.Wrap(errors.KindTransport, "classify.Classify", "finalize multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", &body)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindTransport, "classify.Classify", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WarnTag("CLASSIFY", "model endpoint unreachable: %v", err)
		return Result{Label: LabelFallback, Confidence: 0.0}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnTag("CLASSIFY", "model endpoint returned %d", resp.StatusCode)
		return Result{Label: LabelFallback, Confidence: 0.0}, nil
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, errors.Wrap(errors.KindTransport, "classify.Classify", "read response", err)
	}

	var decoded remoteResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Result{}, errors.Wrap(errors.KindTransport, "classify.Classify", "decode response", err)
	}
	if decoded.Label == "" {
		return Result{}, errors.New(errors.KindTransport, "classify.Classify", "model response missing label")
	}

	label := NormalizeLabel(decoded.Label)
	c.logger.InfoTag("CLASSIFY", "model prediction for %s: %s (%.1f%%)",
		filename, label, decoded.Confidence*100)

	return Result{
		Label:      label,
		Confidence: decoded.Confidence,
		Votes:      decoded.Votes,
	}, nil
}

// Close implements Classifier.
func (c *RemoteClassifier) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

var _ Classifier = (*RemoteClassifier)(nil)
