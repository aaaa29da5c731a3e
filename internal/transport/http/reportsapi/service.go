// Package reportsapi exposes the pollution report endpoints: GPS metadata
// extraction, report upload with classification, and report listings.
package reportsapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	evbus "github.com/asaskevich/EventBus"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"coastwatch-server-go/internal/domain/classify"
	"coastwatch-server-go/internal/domain/exif"
	"coastwatch-server-go/internal/domain/eventbus"
	imagedomain "coastwatch-server-go/internal/domain/image"
	"coastwatch-server-go/internal/domain/report"
	"coastwatch-server-go/internal/platform/config"
	"coastwatch-server-go/internal/platform/logging"
	"coastwatch-server-go/internal/platform/storage"
	httptransport "coastwatch-server-go/internal/transport/http"
)

// Service handles the report endpoints.
type Service struct {
	cfg        *config.Config
	logger     *logging.Logger
	pipeline   *imagedomain.Pipeline
	classifier classify.Classifier
	reports    *storage.ReportRepository
	bus        evbus.Bus
}

// NewService constructs the reports API service. bus may be nil when no
// in-process subscribers exist.
func NewService(
	cfg *config.Config,
	pipeline *imagedomain.Pipeline,
	classifier classify.Classifier,
	reports *storage.ReportRepository,
	bus evbus.Bus,
	logger *logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.Default
	}
	return &Service{
		cfg:        cfg,
		logger:     logger,
		pipeline:   pipeline,
		classifier: classifier,
		reports:    reports,
		bus:        bus,
	}
}

// Register wires the public and secured routes.
func (s *Service) Register(public, secured *gin.RouterGroup) {
	public.POST("/extract-gps", s.handleExtractGPS)
	public.GET("/reports", s.handleListAll)
	if secured != nil {
		secured.POST("/upload", s.handleUpload)
		secured.GET("/reports/my", s.handleListMine)
	}
	s.logger.InfoTag("HTTP", "report routes registered")
}

// handleExtractGPS reads the EXIF geotag out of an uploaded image. Images
// without usable coordinates are a normal outcome, not an error.
func (s *Service) handleExtractGPS(c *gin.Context) {
	data, _, ok := s.readImage(c)
	if !ok {
		return
	}

	gps, found := exif.ExtractGPS(data)
	if !found {
		c.JSON(http.StatusOK, gin.H{"success": true, "has_gps": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"has_gps":   true,
		"latitude":  report.Round6(gps.Latitude),
		"longitude": report.Round6(gps.Longitude),
	})
}

func (s *Service) handleUpload(c *gin.Context) {
	user, ok := httptransport.CurrentUser(c)
	if !ok {
		httptransport.RespondDetail(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	data, filename, ok := s.readImage(c)
	if !ok {
		return
	}

	lat, err := strconv.ParseFloat(c.PostForm("latitude"), 64)
	if err != nil {
		httptransport.RespondDetail(c, http.StatusUnprocessableEntity, "latitude is required")
		return
	}
	lon, err := strconv.ParseFloat(c.PostForm("longitude"), 64)
	if err != nil {
		httptransport.RespondDetail(c, http.StatusUnprocessableEntity, "longitude is required")
		return
	}
	coord, err := report.NewCoordinate(lat, lon, report.SourceManual)
	if err != nil {
		httptransport.RespondDetail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	description := c.PostForm("description")

	out, err := s.pipeline.Process(c.Request.Context(), imagedomain.Input{
		Reader:         bytes.NewReader(data),
		DeclaredFormat: formatFromName(filename),
		Source:         "upload",
	})
	if err != nil {
		httptransport.RespondDetail(c, http.StatusBadRequest, fmt.Sprintf("invalid image: %v", err))
		return
	}

	result, err := s.classifier.Classify(c.Request.Context(), out.Bytes, filename)
	if err != nil {
		httptransport.RespondDetail(c, http.StatusBadGateway, "classification failed")
		return
	}
	label := classify.NormalizeLabel(result.Label)
	info := classify.InfoFor(label)

	imagePath, err := s.saveUpload(out.Bytes, out.Format)
	if err != nil {
		s.logger.ErrorTag("STORAGE", "save upload: %v", err)
		httptransport.RespondDetail(c, http.StatusInternalServerError, "could not store image")
		return
	}

	var votes datatypes.JSON
	if len(result.Votes) > 0 {
		raw, _ := json.Marshal(result.Votes)
		votes = datatypes.JSON(raw)
	}

	rec := &storage.Report{
		UserID:        user.ID,
		ImagePath:     imagePath,
		Latitude:      coord.Latitude,
		Longitude:     coord.Longitude,
		PollutionType: label,
		Confidence:    result.Confidence,
		Description:   description,
		Votes:         votes,
	}
	if err := s.reports.Create(c.Request.Context(), rec); err != nil {
		httptransport.RespondDetail(c, http.StatusInternalServerError, "could not store report")
		return
	}

	s.logger.InfoTag("HTTP", "report %d stored for user %d: %s (%.1f%%)",
		rec.ID, user.ID, label, result.Confidence*100)
	if s.bus != nil {
		s.bus.Publish(eventbus.EventReportStored, eventbus.ReportEventData{
			ReportID:   rec.ID,
			Label:      label,
			Confidence: result.Confidence,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Report submitted successfully",
		"report": report.SubmissionResult{
			ID:             rec.ID,
			Label:          label,
			PollutionName:  info.Name,
			PollutionIcon:  info.Icon,
			PollutionColor: info.Color,
			Confidence:     result.Confidence,
			Latitude:       coord.Latitude,
			Longitude:      coord.Longitude,
			ImagePath:      imagePath,
			Votes:          toModelVotes(result.Votes),
		},
	})
}

func (s *Service) handleListAll(c *gin.Context) {
	reports, err := s.reports.ListAll(c.Request.Context())
	if err != nil {
		httptransport.RespondDetail(c, http.StatusInternalServerError, "could not list reports")
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (s *Service) handleListMine(c *gin.Context) {
	user, ok := httptransport.CurrentUser(c)
	if !ok {
		httptransport.RespondDetail(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	reports, err := s.reports.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		httptransport.RespondDetail(c, http.StatusInternalServerError, "could not list reports")
		return
	}
	c.JSON(http.StatusOK, reports)
}

// readImage pulls the image field out of the multipart form.
func (s *Service) readImage(c *gin.Context) ([]byte, string, bool) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		httptransport.RespondDetail(c, http.StatusUnprocessableEntity, "image file is required")
		return nil, "", false
	}
	defer file.Close()

	maxSize := s.cfg.Security.MaxFileSize
	if maxSize <= 0 {
		maxSize = 5 * 1024 * 1024
	}
	limited := &io.LimitedReader{R: file, N: maxSize + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		httptransport.RespondDetail(c, http.StatusBadRequest, "could not read image")
		return nil, "", false
	}
	if int64(len(data)) > maxSize {
		httptransport.RespondDetail(c, http.StatusRequestEntityTooLarge, "image exceeds size limit")
		return nil, "", false
	}
	return data, header.Filename, true
}

// saveUpload writes the image under a collision-free name and returns its
// public path.
func (s *Service) saveUpload(data []byte, format string) (string, error) {
	dir := s.cfg.Storage.UploadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if format == "" {
		format = "jpg"
	}
	name := uuid.New().String() + "." + format
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", err
	}
	return "/static/uploads/" + name, nil
}

func toModelVotes(votes []classify.Vote) []report.ModelVote {
	if len(votes) == 0 {
		return nil
	}
	out := make([]report.ModelVote, len(votes))
	for i, v := range votes {
		out[i] = report.ModelVote{Model: v.Model, Label: v.Label, Confidence: v.Confidence}
	}
	return out
}

func formatFromName(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	return ext
}
