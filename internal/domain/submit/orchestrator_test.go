package submit

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"coastwatch-server-go/internal/client"
	"coastwatch-server-go/internal/domain/acquire"
	imagedomain "coastwatch-server-go/internal/domain/image"
	"coastwatch-server-go/internal/domain/locate"
	"coastwatch-server-go/internal/domain/report"
	"coastwatch-server-go/internal/platform/errors"
	platformtesting "coastwatch-server-go/internal/platform/testing"
)

type fakeExtractor struct {
	mu      sync.Mutex
	results map[string]client.GPSResult
	gates   map[string]chan struct{}
}

func (f *fakeExtractor) ExtractGPS(ctx context.Context, img []byte, filename string) (client.GPSResult, error) {
	f.mu.Lock()
	gate := f.gates[filename]
	result := f.results[filename]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return result, nil
}

type fakeSubmitter struct {
	mu     sync.Mutex
	calls  int
	result *report.SubmissionResult
	err    error
	block  chan struct{}
}

func (f *fakeSubmitter) Upload(ctx context.Context, req client.UploadRequest) (*report.SubmissionResult, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	orchestrator *Orchestrator
	extractor    *fakeExtractor
	submitter    *fakeSubmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTestLogger(t)

	pipeline, err := imagedomain.NewPipeline(imagedomain.Options{
		Security: &cfg.Security,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	extractor := &fakeExtractor{
		results: map[string]client.GPSResult{},
		gates:   map[string]chan struct{}{},
	}
	submitter := &fakeSubmitter{}
	adapter := acquire.NewAdapter(pipeline, nil, logger)
	resolver := locate.NewResolver(extractor, nil, nil, nil, logger)

	return &fixture{
		orchestrator: NewOrchestrator(adapter, resolver, nil, submitter, nil, logger),
		extractor:    extractor,
		submitter:    submitter,
	}
}

func pngPayload(t *testing.T, name string) acquire.Payload {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return acquire.Payload{Reader: bytes.NewReader(buf.Bytes()), Filename: name}
}

func jpegPayload(t *testing.T, name string) acquire.Payload {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return acquire.Payload{Reader: bytes.NewReader(buf.Bytes()), Filename: name}
}

func waitForState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", o.State(), want)
}

func TestLifecycleHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.extractor.results["valid.jpg"] = client.GPSResult{
		Success: true, HasGPS: true, Latitude: 12.9716, Longitude: 77.5946,
	}
	f.submitter.result = &report.SubmissionResult{
		ID: 1, Label: "plastic", Confidence: 0.92,
		PollutionName: "Plastic Pollution",
	}

	if f.orchestrator.State() != StateIdle {
		t.Fatalf("initial state = %s", f.orchestrator.State())
	}

	if err := f.orchestrator.AttachImage(ctx, acquire.SourceFile, jpegPayload(t, "valid.jpg")); err != nil {
		t.Fatalf("AttachImage: %v", err)
	}
	waitForState(t, f.orchestrator, StateReady)

	draft := f.orchestrator.Draft()
	if draft.Coordinate == nil || draft.Coordinate.Latitude != 12.9716 {
		t.Fatalf("draft coordinate = %+v", draft.Coordinate)
	}
	if !f.orchestrator.CanSubmit() {
		t.Fatalf("CanSubmit should be true with artifact and coordinate")
	}

	if err := f.orchestrator.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if f.orchestrator.State() != StateSucceeded {
		t.Errorf("state = %s, want succeeded", f.orchestrator.State())
	}
	result := f.orchestrator.Result()
	if result == nil || result.Label != "plastic" || result.Confidence != 0.92 {
		t.Errorf("result = %+v", result)
	}
	if f.submitter.callCount() != 1 {
		t.Errorf("upload calls = %d, want 1", f.submitter.callCount())
	}
}

func TestSubmitBlockedWithoutImage(t *testing.T) {
	f := newFixture(t)

	if f.orchestrator.CanSubmit() {
		t.Errorf("CanSubmit must be false with empty draft")
	}
	if err := f.orchestrator.Submit(context.Background()); err != nil {
		t.Fatalf("blocked submit must be a silent no-op, got %v", err)
	}
	if f.submitter.callCount() != 0 {
		t.Errorf("no request may be sent for a blocked submit")
	}
	if f.orchestrator.State() != StateIdle {
		t.Errorf("state = %s, want idle", f.orchestrator.State())
	}
}

func TestSubmitBlockedFromDrafting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Image present but no coordinate resolved.
	f.extractor.results["beach.png"] = client.GPSResult{Success: true, HasGPS: false}
	if err := f.orchestrator.AttachImage(ctx, acquire.SourceDrop, pngPayload(t, "beach.png")); err != nil {
		t.Fatalf("AttachImage: %v", err)
	}
	waitForState(t, f.orchestrator, StateDrafting)

	if err := f.orchestrator.Submit(ctx); err != nil {
		t.Fatalf("submit from drafting must be a no-op, got %v", err)
	}
	if f.submitter.callCount() != 0 {
		t.Errorf("no request may be sent from drafting")
	}
}

func TestReentrantSubmitIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.extractor.results["valid.jpg"] = client.GPSResult{
		Success: true, HasGPS: true, Latitude: 1, Longitude: 2,
	}
	f.submitter.result = &report.SubmissionResult{Label: "glass", Confidence: 0.7}
	f.submitter.block = make(chan struct{})

	if err := f.orchestrator.AttachImage(ctx, acquire.SourceFile, jpegPayload(t, "valid.jpg")); err != nil {
		t.Fatalf("AttachImage: %v", err)
	}
	waitForState(t, f.orchestrator, StateReady)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.orchestrator.Submit(ctx)
	}()
	waitForState(t, f.orchestrator, StateSubmitting)

	// A second submit while one is in flight must be ignored.
	if err := f.orchestrator.Submit(ctx); err != nil {
		t.Fatalf("re-entrant submit: %v", err)
	}

	close(f.submitter.block)
	<-done

	if f.submitter.callCount() != 1 {
		t.Errorf("upload calls = %d, want 1", f.submitter.callCount())
	}
	if f.orchestrator.State() != StateSucceeded {
		t.Errorf("state = %s, want succeeded", f.orchestrator.State())
	}
}

func TestFailureReturnsToReadyAndPreservesDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.extractor.results["valid.jpg"] = client.GPSResult{
		Success: true, HasGPS: true, Latitude: 12.9716, Longitude: 77.5946,
	}
	f.submitter.err = errors.New(errors.KindSubmission, "client.Upload", "image too blurry to classify")

	if err := f.orchestrator.AttachImage(ctx, acquire.SourceFile, jpegPayload(t, "valid.jpg")); err != nil {
		t.Fatalf("AttachImage: %v", err)
	}
	waitForState(t, f.orchestrator, StateReady)

	if err := f.orchestrator.Submit(ctx); err == nil {
		t.Fatalf("expected submission error")
	}
	if f.orchestrator.State() != StateReady {
		t.Errorf("state = %s, want ready for retry", f.orchestrator.State())
	}
	if got := f.orchestrator.LastError(); got != "image too blurry to classify" {
		t.Errorf("LastError = %q, want server detail", got)
	}
	draft := f.orchestrator.Draft()
	if draft.Artifact == nil || draft.Coordinate == nil {
		t.Errorf("draft must be preserved after failure")
	}

	// Resubmission succeeds once the backend recovers.
	f.submitter.mu.Lock()
	f.submitter.err = nil
	f.submitter.result = &report.SubmissionResult{Label: "plastic", Confidence: 0.9}
	f.submitter.mu.Unlock()

	if err := f.orchestrator.Submit(ctx); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if f.orchestrator.State() != StateSucceeded {
		t.Errorf("state = %s, want succeeded after retry", f.orchestrator.State())
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.extractor.results["valid.jpg"] = client.GPSResult{
		Success: true, HasGPS: true, Latitude: 1, Longitude: 2,
	}
	f.submitter.result = &report.SubmissionResult{Label: "metal", Confidence: 0.8}

	if err := f.orchestrator.AttachImage(ctx, acquire.SourceFile, jpegPayload(t, "valid.jpg")); err != nil {
		t.Fatalf("AttachImage: %v", err)
	}
	waitForState(t, f.orchestrator, StateReady)
	artifact := f.orchestrator.Draft().Artifact

	if err := f.orchestrator.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Succeeded is terminal until the explicit reset.
	if err := f.orchestrator.AttachImage(ctx, acquire.SourceFile, jpegPayload(t, "another.jpg")); err != nil {
		t.Fatalf("AttachImage after success: %v", err)
	}
	if f.orchestrator.State() != StateSucceeded {
		t.Errorf("acquisition must not leave succeeded without reset")
	}

	f.orchestrator.Reset()
	if f.orchestrator.State() != StateIdle {
		t.Errorf("state = %s, want idle after reset", f.orchestrator.State())
	}
	if f.orchestrator.Result() != nil {
		t.Errorf("result must be discarded on reset")
	}
	if !artifact.Preview.Released() {
		t.Errorf("preview must be released")
	}
}

func TestStaleExtractionNeverCorruptsNewerDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gate := make(chan struct{})
	f.extractor.gates["a.png"] = gate
	f.extractor.results["a.png"] = client.GPSResult{
		Success: true, HasGPS: true, Latitude: 11, Longitude: 11,
	}
	f.extractor.results["b.jpg"] = client.GPSResult{
		Success: true, HasGPS: true, Latitude: 22, Longitude: 22,
	}

	// Extraction for image A stalls; the user replaces it with image B.
	if err := f.orchestrator.AttachImage(ctx, acquire.SourceFile, pngPayload(t, "a.png")); err != nil {
		t.Fatalf("AttachImage a: %v", err)
	}
	if err := f.orchestrator.AttachImage(ctx, acquire.SourceFile, jpegPayload(t, "b.jpg")); err != nil {
		t.Fatalf("AttachImage b: %v", err)
	}
	waitForState(t, f.orchestrator, StateReady)

	// Now A's extraction completes late. Its write must be discarded.
	close(gate)
	time.Sleep(50 * time.Millisecond)

	draft := f.orchestrator.Draft()
	if draft.Coordinate == nil || draft.Coordinate.Latitude != 22 {
		t.Fatalf("coordinate = %+v, must reflect image B", draft.Coordinate)
	}
}

func TestResetDuringSubmitDiscardsCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.extractor.results["valid.jpg"] = client.GPSResult{
		Success: true, HasGPS: true, Latitude: 1, Longitude: 2,
	}
	f.submitter.result = &report.SubmissionResult{Label: "plastic", Confidence: 0.9}
	f.submitter.block = make(chan struct{})

	if err := f.orchestrator.AttachImage(ctx, acquire.SourceFile, jpegPayload(t, "valid.jpg")); err != nil {
		t.Fatalf("AttachImage: %v", err)
	}
	waitForState(t, f.orchestrator, StateReady)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.orchestrator.Submit(ctx)
	}()
	waitForState(t, f.orchestrator, StateSubmitting)

	// Abandoning the pipeline while the upload is in flight must win over
	// the response that lands afterwards.
	f.orchestrator.Reset()
	if f.orchestrator.State() != StateIdle {
		t.Fatalf("state after reset = %s, want idle", f.orchestrator.State())
	}

	close(f.submitter.block)
	<-done

	if got := f.orchestrator.State(); got != StateIdle {
		t.Errorf("state after late completion = %s, want idle", got)
	}
	if result := f.orchestrator.Result(); result != nil {
		t.Errorf("late completion applied a result: %+v", result)
	}
	if msg := f.orchestrator.LastError(); msg != "" {
		t.Errorf("last error = %q, want empty", msg)
	}
}

func TestResetDuringSubmitDiscardsFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.extractor.results["valid.jpg"] = client.GPSResult{
		Success: true, HasGPS: true, Latitude: 1, Longitude: 2,
	}
	f.submitter.err = errors.New(errors.KindSubmission, "client.Upload", "image too blurry to classify")
	f.submitter.block = make(chan struct{})

	if err := f.orchestrator.AttachImage(ctx, acquire.SourceFile, jpegPayload(t, "valid.jpg")); err != nil {
		t.Fatalf("AttachImage: %v", err)
	}
	waitForState(t, f.orchestrator, StateReady)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.orchestrator.Submit(ctx)
	}()
	waitForState(t, f.orchestrator, StateSubmitting)

	f.orchestrator.Reset()
	close(f.submitter.block)
	<-done

	if got := f.orchestrator.State(); got != StateIdle {
		t.Errorf("state after late failure = %s, want idle", got)
	}
	if msg := f.orchestrator.LastError(); msg != "" {
		t.Errorf("late failure surfaced an error on an empty draft: %q", msg)
	}
}
