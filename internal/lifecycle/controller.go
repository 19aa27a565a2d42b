// Package lifecycle owns the job state machine. The controller is the sole
// writer of terminal states; every transition goes through the store's CAS so
// that concurrent workers and duplicate queue deliveries cannot race it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/turkicnlp/corpusd/internal/job"
	"github.com/turkicnlp/corpusd/internal/pipeline"
	"github.com/turkicnlp/corpusd/internal/results"
	"github.com/turkicnlp/corpusd/internal/upload"
)

// Metrics receives job outcome counts. Satisfied by metrics.Collector.
type Metrics interface {
	JobCompleted()
	JobFailed()
	UploadFailed()
	ObserveJobDuration(seconds float64)
}

type nopMetrics struct{}

func (nopMetrics) JobCompleted()              {}
func (nopMetrics) JobFailed()                 {}
func (nopMetrics) UploadFailed()              {}
func (nopMetrics) ObserveJobDuration(float64) {}

// Controller drives a job from dequeue to a terminal state.
type Controller struct {
	store     job.Store
	processor pipeline.Processor
	uploader  upload.Uploader
	results   *results.Store
	emitter   Emitter
	metrics   Metrics

	// strict couples job completion to upload success. Fixed at deployment:
	// mixing modes per job would change what "completed" means to clients.
	strict bool
}

func NewController(store job.Store, processor pipeline.Processor, uploader upload.Uploader,
	res *results.Store, emitter Emitter, strict bool) *Controller {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &Controller{
		store:     store,
		processor: processor,
		uploader:  uploader,
		results:   res,
		emitter:   emitter,
		metrics:   nopMetrics{},
		strict:    strict,
	}
}

// SetMetrics wires an outcome counter sink.
func (c *Controller) SetMetrics(m Metrics) {
	if m != nil {
		c.metrics = m
	}
}

// Run executes one delivery of jobID. It is idempotent under at-least-once
// delivery: redelivery of a job that already left "queued" is a no-op.
// A non-nil return means the store was unreachable and the queue layer should
// redeliver; every other failure ends in a terminal "failed" record.
func (c *Controller) Run(ctx context.Context, jobID string) error {
	// Step 1: claim the job. A CAS miss is a duplicate delivery.
	claimed, err := c.store.SetIfStatus(ctx, jobID, job.StatusQueued,
		job.Fields{Status: statusPtr(job.StatusProcessing), Message: strPtr("started")})
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !claimed {
		c.emitter.Emit(Event{JobID: jobID, Phase: PhaseDequeue, Outcome: OutcomeSkip, Detail: "duplicate delivery"})
		return nil
	}
	c.emitter.Emit(Event{JobID: jobID, Phase: PhaseDequeue, Outcome: OutcomeOK})
	start := time.Now()
	defer func() { c.metrics.ObserveJobDuration(time.Since(start).Seconds()) }()

	j, err := c.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if j == nil {
		// Claimed then vanished; nothing sensible left to transition.
		return fmt.Errorf("job %s disappeared after claim", jobID)
	}

	// Step 2: run the pipeline.
	sentences, err := c.processor.Process(ctx, pipeline.Spec{
		Source:              j.Params.Source,
		Language:            j.Params.Language,
		MaxSentences:        j.Params.MaxSentences,
		Transliterate:       j.Params.Transliterate,
		ConfidenceThreshold: j.Params.ConfidenceThreshold,
	})
	if err != nil {
		c.emitter.Emit(Event{JobID: jobID, Phase: PhasePipeline, Outcome: OutcomeFail, Detail: err.Error()})
		return c.fail(ctx, jobID, pipelineMessage(err), err.Error())
	}
	c.emitter.Emit(Event{JobID: jobID, Phase: PhasePipeline, Outcome: OutcomeOK,
		Detail: fmt.Sprintf("%d sentences", len(sentences))})

	if err := c.store.Update(ctx, jobID, job.SetProgress(50, "processing")); err != nil {
		return fmt.Errorf("update progress %s: %w", jobID, err)
	}

	// Step 3: persist the result before any transition can expose it.
	resultPath, err := c.results.Write(jobID, sentences)
	if err != nil {
		c.emitter.Emit(Event{JobID: jobID, Phase: PhasePersist, Outcome: OutcomeFail, Detail: err.Error()})
		return c.fail(ctx, jobID, "result_write_failed", err.Error())
	}
	c.emitter.Emit(Event{JobID: jobID, Phase: PhasePersist, Outcome: OutcomeOK})

	// Steps 4-5: the completion gate.
	if c.strict {
		return c.finishStrict(ctx, jobID, resultPath)
	}
	return c.finishBestEffort(ctx, jobID, resultPath)
}

// finishStrict makes upload success a precondition of "completed". The local
// result file is kept for diagnostics but never exposed through the record.
func (c *Controller) finishStrict(ctx context.Context, jobID, resultPath string) error {
	if c.uploader == nil || !c.uploader.Configured() {
		c.emitter.Emit(Event{JobID: jobID, Phase: PhaseUpload, Outcome: OutcomeFail, Detail: "not configured"})
		return c.fail(ctx, jobID, "upload_not_configured", upload.ErrNotConfigured.Error())
	}

	artifactID, err := c.upload(ctx, jobID, resultPath)
	if err != nil {
		c.metrics.UploadFailed()
		c.emitter.Emit(Event{JobID: jobID, Phase: PhaseUpload, Outcome: OutcomeFail, Detail: err.Error()})
		return c.fail(ctx, jobID, uploadMessage(err), err.Error())
	}
	c.emitter.Emit(Event{JobID: jobID, Phase: PhaseUpload, Outcome: OutcomeOK})

	return c.complete(ctx, jobID, job.SetCompleted(resultPath, artifactID))
}

// finishBestEffort completes the job first, then attempts the upload once.
// The artifact ID lands via a CAS restricted to still-completed jobs.
func (c *Controller) finishBestEffort(ctx context.Context, jobID, resultPath string) error {
	if err := c.complete(ctx, jobID, job.SetCompleted(resultPath, "")); err != nil {
		return err
	}

	if c.uploader == nil || !c.uploader.Configured() {
		c.emitter.Emit(Event{JobID: jobID, Phase: PhaseUpload, Outcome: OutcomeSkip, Detail: "not configured"})
		return nil
	}

	artifactID, err := c.upload(ctx, jobID, resultPath)
	if err != nil {
		c.metrics.UploadFailed()
		c.emitter.Emit(Event{JobID: jobID, Phase: PhaseUpload, Outcome: OutcomeFail, Detail: err.Error()})
		return nil
	}

	ok, err := c.store.SetIfStatus(ctx, jobID, job.StatusCompleted, job.SetArtifact(artifactID))
	if err != nil {
		return fmt.Errorf("record artifact %s: %w", jobID, err)
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeSkip
	}
	c.emitter.Emit(Event{JobID: jobID, Phase: PhaseUpload, Outcome: outcome, Detail: "artifact " + artifactID})
	return nil
}

func (c *Controller) upload(ctx context.Context, jobID, resultPath string) (string, error) {
	payload, err := os.ReadFile(resultPath)
	if err != nil {
		return "", fmt.Errorf("read result for upload: %w", err)
	}
	return c.uploader.Upload(ctx, payload, jobID+".txt")
}

func (c *Controller) complete(ctx context.Context, jobID string, f job.Fields) error {
	ok, err := c.store.SetIfStatus(ctx, jobID, job.StatusProcessing, f)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	c.finalizeEvent(jobID, ok, string(job.StatusCompleted))
	if ok {
		c.metrics.JobCompleted()
	}
	return nil
}

func (c *Controller) fail(ctx context.Context, jobID, message, errText string) error {
	ok, err := c.store.SetIfStatus(ctx, jobID, job.StatusProcessing, job.SetFailed(message, errText))
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	c.finalizeEvent(jobID, ok, string(job.StatusFailed))
	if ok {
		c.metrics.JobFailed()
	}
	return nil
}

func (c *Controller) finalizeEvent(jobID string, casHeld bool, status string) {
	outcome := OutcomeOK
	detail := status
	if !casHeld {
		// Another writer got there first; the terminal state stands as is.
		outcome = OutcomeSkip
		detail = "terminal state already written"
	}
	c.emitter.Emit(Event{JobID: jobID, Phase: PhaseFinalize, Outcome: outcome, Detail: detail})
}

// pipelineMessage maps pipeline failures to the recorded message category.
func pipelineMessage(err error) string {
	var dl *pipeline.DownloadError
	switch {
	case errors.As(err, &dl):
		return "download_failed"
	case errors.Is(err, pipeline.ErrUnsupportedLanguage):
		return "unsupported_language"
	default:
		return "processing_failed"
	}
}

// uploadMessage maps upload failures to the recorded message category.
func uploadMessage(err error) string {
	var ue *upload.Error
	if errors.As(err, &ue) {
		return "upload_" + string(ue.Reason)
	}
	return "upload_failed"
}

func statusPtr(s job.Status) *job.Status { return &s }
func strPtr(s string) *string            { return &s }
