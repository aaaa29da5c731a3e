package eventbus

// Event topics published by the report pipeline.
const (
	// pipeline lifecycle
	EventPipelineState = "pipeline:state"
	EventDraftReset    = "pipeline:reset"

	// acquisition
	EventImageAcquired = "acquire:image"
	EventImageRejected = "acquire:rejected"

	// location resolution
	EventCoordinateResolved = "locate:resolved"
	EventLocationDenied     = "locate:denied"

	// submission
	EventReportSubmitted = "submit:succeeded"
	EventSubmitFailed    = "submit:failed"

	// backend
	EventReportStored = "report:stored"
)

// StateEventData describes a pipeline state transition.
type StateEventData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CoordinateEventData describes a resolved coordinate write.
type CoordinateEventData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Source    string  `json:"source"`
}

// ReportEventData describes a stored or submitted report.
type ReportEventData struct {
	ReportID   uint    `json:"report_id,omitempty"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}
