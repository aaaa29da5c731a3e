// Package submit owns the report draft and drives the submission state
// machine from first acquisition through classification result.
package submit

import (
	"context"
	stderrors "errors"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"coastwatch-server-go/internal/client"
	"coastwatch-server-go/internal/domain/acquire"
	"coastwatch-server-go/internal/domain/eventbus"
	"coastwatch-server-go/internal/domain/locate"
	"coastwatch-server-go/internal/domain/report"
	"coastwatch-server-go/internal/platform/errors"
	"coastwatch-server-go/internal/platform/logging"
)

// State is the pipeline lifecycle value. Exactly one state is live at a
// time for a session.
type State string

const (
	StateIdle       State = "idle"
	StateDrafting   State = "drafting"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Submitter uploads a completed draft to the backend.
type Submitter interface {
	Upload(ctx context.Context, req client.UploadRequest) (*report.SubmissionResult, error)
}

// Orchestrator coordinates acquisition, location resolution and upload for
// one report draft at a time.
type Orchestrator struct {
	adapter   *acquire.Adapter
	resolver  *locate.Resolver
	camera    *acquire.CameraManager
	submitter Submitter
	bus       evbus.Bus
	logger    *logging.Logger

	mu         sync.Mutex
	state      State
	draft      report.Draft
	result     *report.SubmissionResult
	lastErr    string
	submitting bool
}

// NewOrchestrator wires the pipeline components together. camera may be
// nil when no live capture surface exists.
func NewOrchestrator(adapter *acquire.Adapter, resolver *locate.Resolver, camera *acquire.CameraManager, submitter Submitter, bus evbus.Bus, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default
	}
	return &Orchestrator{
		adapter:   adapter,
		resolver:  resolver,
		camera:    camera,
		submitter: submitter,
		bus:       bus,
		logger:    logger,
		state:     StateIdle,
	}
}

// AttachImage acquires an image and installs it into the draft, then kicks
// off metadata extraction for the new artifact. Acquisitions after a
// successful submission are ignored until the draft is reset.
func (o *Orchestrator) AttachImage(ctx context.Context, source acquire.Source, payload acquire.Payload) error {
	o.mu.Lock()
	if o.state == StateSucceeded || o.submitting {
		o.mu.Unlock()
		o.logger.DebugTag("SUBMIT", "ignoring acquisition in state %s", o.state)
		return nil
	}
	o.mu.Unlock()

	artifact, err := o.adapter.Acquire(ctx, source, payload)
	if err != nil {
		return err
	}
	if artifact == nil {
		// Silently ignored or superseded by a newer acquisition.
		return nil
	}

	o.mu.Lock()
	o.draft.Artifact = artifact
	o.draft.Generation++
	o.resolver.Invalidate()
	o.recomputeStateLocked()
	o.mu.Unlock()

	// Metadata extraction starts immediately; the resolver discards the
	// result if the image is replaced while the call is in flight.
	go func() {
		o.resolver.ResolveFromImage(context.Background(), artifact)
		o.refreshCoordinate()
	}()
	return nil
}

// RequestDeviceLocation resolves a single-shot device position on explicit
// user action. A denial leaves the draft untouched.
func (o *Orchestrator) RequestDeviceLocation(ctx context.Context) error {
	_, err := o.resolver.ResolveFromDevice(ctx)
	o.refreshCoordinate()
	return err
}

// SetManualLocation installs a user-entered coordinate.
func (o *Orchestrator) SetManualLocation(lat, lon float64) error {
	_, err := o.resolver.SetManual(lat, lon)
	o.refreshCoordinate()
	return err
}

// SetDescription updates the free-text note on the draft.
func (o *Orchestrator) SetDescription(text string) {
	o.mu.Lock()
	o.draft.Description = text
	o.mu.Unlock()
}

// CanSubmit reports whether the submission guard is satisfied. Surfaces
// expose this to disable the action instead of letting it fail.
func (o *Orchestrator) CanSubmit() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncCoordinateLocked()
	return o.state == StateReady && o.draft.Complete()
}

// Submit packages the draft as a multipart upload. At most one submission
// is in flight; re-entrant attempts and attempts without a complete draft
// are no-ops that send nothing.
func (o *Orchestrator) Submit(ctx context.Context) error {
	o.mu.Lock()
	o.syncCoordinateLocked()
	if o.submitting {
		o.mu.Unlock()
		o.logger.DebugTag("SUBMIT", "submission already in flight, ignoring")
		return nil
	}
	if o.state != StateReady || !o.draft.Complete() {
		o.mu.Unlock()
		o.logger.DebugTag("SUBMIT", "submit blocked: draft incomplete")
		return nil
	}

	o.submitting = true
	o.setStateLocked(StateSubmitting)
	gen := o.draft.Generation
	req := client.UploadRequest{
		Image:       o.draft.Artifact.Data,
		Filename:    o.draft.Artifact.Filename,
		Latitude:    o.draft.Coordinate.Latitude,
		Longitude:   o.draft.Coordinate.Longitude,
		Description: o.draft.Description,
	}
	o.mu.Unlock()

	result, err := o.submitter.Upload(ctx, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitting = false

	// A reset or replacement while the upload was in flight bumps the
	// generation; the completion no longer has a draft to apply to.
	if o.draft.Generation != gen {
		o.logger.DebugTag("SUBMIT", "discarding stale submission completion")
		return nil
	}

	if err != nil {
		o.lastErr = submissionMessage(err)
		o.setStateLocked(StateFailed)
		// The draft is preserved; the machine returns to ready so the
		// user can resubmit.
		o.setStateLocked(StateReady)
		if o.bus != nil {
			o.bus.Publish(eventbus.EventSubmitFailed, o.lastErr)
		}
		return err
	}

	o.result = result
	o.lastErr = ""
	if o.draft.Artifact != nil {
		o.draft.Artifact.ReleasePreview()
	}
	o.draft = report.Draft{Generation: o.draft.Generation}
	o.setStateLocked(StateSucceeded)
	if o.bus != nil {
		o.bus.Publish(eventbus.EventReportSubmitted, eventbus.ReportEventData{
			ReportID:   result.ID,
			Label:      result.Label,
			Confidence: result.Confidence,
		})
	}
	return nil
}

// Reset clears the draft, result and error, releases held resources and
// returns the machine to idle. This is the only way out of succeeded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	artifact := o.draft.Artifact
	gen := o.draft.Generation + 1
	o.draft = report.Draft{Generation: gen}
	o.result = nil
	o.lastErr = ""
	o.resolver.Invalidate()
	o.setStateLocked(StateIdle)
	o.mu.Unlock()

	if artifact != nil {
		artifact.ReleasePreview()
	}
	o.adapter.Release()
	if o.camera != nil {
		o.camera.CloseActive()
	}
	if o.bus != nil {
		o.bus.Publish(eventbus.EventDraftReset)
	}
}

// State returns the current pipeline state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncCoordinateLocked()
	return o.state
}

// Result returns the stored classification record, or nil.
func (o *Orchestrator) Result() *report.SubmissionResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// LastError returns the user-visible submission error, if any.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Draft returns a snapshot of the draft fields.
func (o *Orchestrator) Draft() report.Draft {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncCoordinateLocked()
	return o.draft
}

// refreshCoordinate pulls the resolver's coordinate into the draft and
// recomputes the state.
func (o *Orchestrator) refreshCoordinate() {
	o.mu.Lock()
	o.syncCoordinateLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) syncCoordinateLocked() {
	o.draft.Coordinate = o.resolver.Coordinate()
	o.recomputeStateLocked()
}

// recomputeStateLocked derives the pre-submission state from the draft.
// Submission states are never overwritten here.
func (o *Orchestrator) recomputeStateLocked() {
	if o.submitting || o.state == StateSucceeded {
		return
	}
	switch {
	case o.draft.Complete():
		o.setStateLocked(StateReady)
	case o.draft.Artifact != nil || o.draft.Coordinate != nil:
		o.setStateLocked(StateDrafting)
	default:
		o.setStateLocked(StateIdle)
	}
}

func (o *Orchestrator) setStateLocked(next State) {
	if o.state == next {
		return
	}
	prev := o.state
	o.state = next
	o.logger.InfoTag("SUBMIT", "pipeline %s -> %s", prev, next)
	if o.bus != nil {
		o.bus.Publish(eventbus.EventPipelineState, eventbus.StateEventData{
			From: string(prev),
			To:   string(next),
		})
	}
}

// submissionMessage extracts the server-provided detail when present,
// falling back to a generic message.
func submissionMessage(err error) string {
	var appErr *errors.Error
	if stderrors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "submission failed, please try again"
}
