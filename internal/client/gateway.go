// Package client is the HTTP gateway to the report backend. It speaks the
// multipart endpoints for metadata extraction and report upload on behalf
// of the pipeline.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"coastwatch-server-go/internal/domain/report"
	"coastwatch-server-go/internal/platform/config"
	"coastwatch-server-go/internal/platform/errors"
	"coastwatch-server-go/internal/platform/logging"
)

const defaultTimeout = 15 * time.Second

// Gateway issues requests against the report backend.
type Gateway struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logging.Logger
}

// NewGateway constructs a gateway from the pipeline configuration. Every
// request is bounded by the configured timeout.
func NewGateway(cfg *config.PipelineConfig, logger *logging.Logger) *Gateway {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default
	}
	return &Gateway{
		baseURL: cfg.BackendURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetToken attaches a bearer token to subsequent requests.
func (g *Gateway) SetToken(token string) {
	g.token = token
}

// GPSResult mirrors the extract-gps response body.
type GPSResult struct {
	Success   bool    `json:"success"`
	HasGPS    bool    `json:"has_gps"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ExtractGPS posts the image to the metadata extraction endpoint.
func (g *Gateway) ExtractGPS(ctx context.Context, image []byte, filename string) (GPSResult, error) {
	const op = "client.ExtractGPS"

	body, contentType, err := imageForm(image, filename, nil)
	if err != nil {
		return GPSResult{}, errors.Wrap(errors.KindTransport, op, "build request body", err)
	}

	resp, err := g.post(ctx, "/api/extract-gps", body, contentType)
	if err != nil {
		return GPSResult{}, errors.Wrap(errors.KindTransport, op, "extract-gps request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GPSResult{}, errors.New(errors.KindTransport, op,
			fmt.Sprintf("extract-gps returned status %d", resp.StatusCode))
	}

	var result GPSResult
	if err := decodeBody(resp.Body, &result); err != nil {
		return GPSResult{}, errors.Wrap(errors.KindTransport, op, "decode response", err)
	}
	return result, nil
}

// UploadRequest carries the draft fields for submission.
type UploadRequest struct {
	Image       []byte
	Filename    string
	Latitude    float64
	Longitude   float64
	Description string
}

type uploadResponse struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	Report  *report.SubmissionResult `json:"report"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Upload submits the draft as multipart form data and returns the stored
// classification record. Server-side rejections surface the backend's
// detail string when it provides one.
func (g *Gateway) Upload(ctx context.Context, req UploadRequest) (*report.SubmissionResult, error) {
	const op = "client.Upload"

	fields := map[string]string{
		"latitude":    strconv.FormatFloat(req.Latitude, 'f', 6, 64),
		"longitude":   strconv.FormatFloat(req.Longitude, 'f', 6, 64),
		"description": req.Description,
	}
	body, contentType, err := imageForm(req.Image, req.Filename, fields)
	if err != nil {
		return nil, errors.Wrap(errors.KindSubmission, op, "build request body", err)
	}

	resp, err := g.post(ctx, "/api/upload", body, contentType)
	if err != nil {
		return nil, errors.Wrap(errors.KindSubmission, op, "upload request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(errors.KindSubmission, op, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var detail errorResponse
		if json.Unmarshal(payload, &detail) == nil && detail.Detail != "" {
			return nil, errors.New(errors.KindSubmission, op, detail.Detail)
		}
		return nil, errors.New(errors.KindSubmission, op,
			fmt.Sprintf("upload rejected with status %d", resp.StatusCode))
	}

	var decoded uploadResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, errors.Wrap(errors.KindSubmission, op, "decode response", err)
	}
	if !decoded.Success || decoded.Report == nil {
		msg := decoded.Message
		if msg == "" {
			msg = "upload did not return a report"
		}
		return nil, errors.New(errors.KindSubmission, op, msg)
	}

	g.logger.InfoTag("SUBMIT", "report %d accepted as %s (%.1f%%)",
		decoded.Report.ID, decoded.Report.Label, decoded.Report.Confidence*100)
	return decoded.Report, nil
}

// MyReports fetches the caller's prior reports.
func (g *Gateway) MyReports(ctx context.Context) ([]report.SubmissionResult, error) {
	const op = "client.MyReports"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/reports/my", nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, op, "build request", err)
	}
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.KindTransport, op,
			fmt.Sprintf("reports/my returned status %d", resp.StatusCode))
	}

	var results []report.SubmissionResult
	if err := decodeBody(resp.Body, &results); err != nil {
		return nil, errors.Wrap(errors.KindTransport, op, "decode response", err)
	}
	return results, nil
}

// ReverseGeocode asks the backend for a short display name of a coordinate.
func (g *Gateway) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	const op = "client.ReverseGeocode"

	url := fmt.Sprintf("%s/api/geocode/reverse?lat=%s&lon=%s",
		g.baseURL,
		strconv.FormatFloat(lat, 'f', 6, 64),
		strconv.FormatFloat(lon, 'f', 6, 64))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, op, "build request", err)
	}
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.KindTransport, op,
			fmt.Sprintf("geocode returned status %d", resp.StatusCode))
	}

	var decoded struct {
		Name string `json:"name"`
	}
	if err := decodeBody(resp.Body, &decoded); err != nil {
		return "", errors.Wrap(errors.KindTransport, op, "decode response", err)
	}
	return decoded.Name, nil
}

func (g *Gateway) post(ctx context.Context, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	g.authorize(req)
	return g.client.Do(req)
}

func (g *Gateway) authorize(req *http.Request) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
}

func imageForm(image []byte, filename string, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func decodeBody(body io.Reader, target interface{}) error {
	payload, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, target)
}
