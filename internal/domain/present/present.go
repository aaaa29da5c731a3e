// Package present shapes a classification result into display-ready
// fields. Pure mapping, no side effects.
package present

import (
	"fmt"

	"coastwatch-server-go/internal/domain/report"
)

// Bucket is the coarse confidence grade shown to the user.
type Bucket string

const (
	BucketHigh   Bucket = "High"
	BucketMedium Bucket = "Medium"
	BucketLow    Bucket = "Low"
)

// Bucketing thresholds. Fixed policy: High at 0.85 and above, Medium at
// 0.60 and above, Low below that.
const (
	highThreshold   = 0.85
	mediumThreshold = 0.60
)

var bucketColors = map[Bucket]string{
	BucketHigh:   "#10b981",
	BucketMedium: "#f59e0b",
	BucketLow:    "#ef4444",
}

// Headers for the result card.
const (
	headerAnalyzed = "Report Analyzed!"
	headerNoWaste  = "No Pollution Detected!"
)

// View is the flattened, render-ready form of a submission result.
type View struct {
	Header         string `json:"header"`
	Positive       bool   `json:"positive"`
	Label          string `json:"label"`
	Name           string `json:"name"`
	Icon           string `json:"icon"`
	Color          string `json:"color"`
	Bucket         Bucket `json:"bucket"`
	BucketColor    string `json:"bucket_color"`
	ConfidenceText string `json:"confidence_text"`
	LatitudeText   string `json:"latitude_text"`
	LongitudeText  string `json:"longitude_text"`
}

// BucketFor grades a confidence value.
func BucketFor(confidence float64) Bucket {
	switch {
	case confidence >= highThreshold:
		return BucketHigh
	case confidence >= mediumThreshold:
		return BucketMedium
	default:
		return BucketLow
	}
}

// BucketColor returns the display color for a bucket.
func BucketColor(b Bucket) string {
	return bucketColors[b]
}

// Render maps a submission result to its view. The no-waste label forces
// the positive header regardless of the confidence value.
func Render(result *report.SubmissionResult) View {
	if result == nil {
		return View{}
	}

	bucket := BucketFor(result.Confidence)
	view := View{
		Header:         headerAnalyzed,
		Label:          result.Label,
		Name:           result.PollutionName,
		Icon:           result.PollutionIcon,
		Color:          result.PollutionColor,
		Bucket:         bucket,
		BucketColor:    bucketColors[bucket],
		ConfidenceText: fmt.Sprintf("%.1f%%", result.Confidence*100),
		LatitudeText:   fmt.Sprintf("%.4f", result.Latitude),
		LongitudeText:  fmt.Sprintf("%.4f", result.Longitude),
	}
	if result.NoWaste() {
		view.Header = headerNoWaste
		view.Positive = true
	}
	return view
}
