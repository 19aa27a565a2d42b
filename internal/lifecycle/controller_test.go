package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turkicnlp/corpusd/internal/job"
	"github.com/turkicnlp/corpusd/internal/pipeline"
	"github.com/turkicnlp/corpusd/internal/results"
	"github.com/turkicnlp/corpusd/internal/upload"
)

type fakeProcessor struct {
	sentences []string
	err       error
}

func (f *fakeProcessor) Process(context.Context, pipeline.Spec) ([]string, error) {
	return f.sentences, f.err
}

type fakeUploader struct {
	configured bool
	artifactID string
	err        error

	calls      int
	gotPayload []byte
	gotName    string
}

func (f *fakeUploader) Configured() bool { return f.configured }

func (f *fakeUploader) Upload(_ context.Context, payload []byte, name string) (string, error) {
	f.calls++
	f.gotPayload = payload
	f.gotName = name
	if f.err != nil {
		return "", f.err
	}
	return f.artifactID, nil
}

type countingMetrics struct {
	completed, failed, uploadsFailed int
	durations                        int
}

func (m *countingMetrics) JobCompleted()              { m.completed++ }
func (m *countingMetrics) JobFailed()                 { m.failed++ }
func (m *countingMetrics) UploadFailed()              { m.uploadsFailed++ }
func (m *countingMetrics) ObserveJobDuration(float64) { m.durations++ }

type env struct {
	store     *job.SQLiteStore
	results   *results.Store
	processor *fakeProcessor
	uploader  *fakeUploader
	metrics   *countingMetrics
	ctl       *Controller
}

func newEnv(t *testing.T, strict bool) *env {
	t.Helper()
	store, err := job.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	e := &env{
		store:     store,
		results:   results.NewStore(t.TempDir()),
		processor: &fakeProcessor{sentences: []string{"бір", "екі", "үш"}},
		uploader:  &fakeUploader{configured: true, artifactID: "artifact-1"},
		metrics:   &countingMetrics{},
	}
	e.ctl = NewController(store, e.processor, e.uploader, e.results, NopEmitter{}, strict)
	e.ctl.SetMetrics(e.metrics)
	return e
}

func (e *env) enqueue(t *testing.T, id string) {
	t.Helper()
	err := e.store.Create(context.Background(), &job.Job{
		ID: id,
		Params: job.Params{
			Source: "wikipedia", Language: "kk",
			MaxSentences: 100, ConfidenceThreshold: 0.9,
		},
		Status:    job.StatusQueued,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func (e *env) get(t *testing.T, id string) *job.Job {
	t.Helper()
	j, err := e.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, j)
	return j
}

func TestRun_BestEffort_Completes(t *testing.T) {
	e := newEnv(t, false)
	e.processor.sentences = []string{"a", "b", "c", "d", "e"}
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	j := e.get(t, "j1")
	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.Equal(t, 100, j.Progress)
	assert.Equal(t, "artifact-1", j.ArtifactID)
	assert.NotEmpty(t, j.ResultPath)

	data, err := e.results.Read("j1")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\nd\ne\n", string(data))
	assert.Equal(t, 1, e.metrics.completed)
	assert.Equal(t, 1, e.metrics.durations)
}

func TestRun_DuplicateDelivery(t *testing.T) {
	e := newEnv(t, false)
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))
	before := e.get(t, "j1")

	// A second delivery of the same job must change nothing.
	require.NoError(t, e.ctl.Run(context.Background(), "j1"))
	after := e.get(t, "j1")

	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.ArtifactID, after.ArtifactID)
	assert.True(t, after.UpdatedAt.Equal(before.UpdatedAt), "record touched by duplicate delivery")
	assert.Equal(t, 1, e.uploader.calls)
	assert.Equal(t, 1, e.metrics.completed)
}

func TestRun_Strict_NotConfigured(t *testing.T) {
	e := newEnv(t, true)
	e.uploader.configured = false
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	j := e.get(t, "j1")
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Equal(t, "upload_not_configured", j.Message)
	assert.Equal(t, 1, e.metrics.failed)
	assert.Zero(t, e.uploader.calls)
}

func TestRun_Strict_AuthFailure(t *testing.T) {
	e := newEnv(t, true)
	e.uploader.err = &upload.Error{Reason: upload.AuthError, Status: 401, Err: errors.New("credential rejected")}
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	j := e.get(t, "j1")
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Equal(t, "upload_auth_error", j.Message)
	assert.Empty(t, j.ArtifactID)
	// The produced file stays on disk for diagnostics.
	assert.True(t, e.results.Exists("j1"))
	assert.Equal(t, 1, e.metrics.uploadsFailed)
	assert.Equal(t, 1, e.metrics.failed)
}

func TestRun_Strict_Success(t *testing.T) {
	e := newEnv(t, true)
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	j := e.get(t, "j1")
	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.Equal(t, "artifact-1", j.ArtifactID)
}

func TestRun_BestEffort_UploadFailureStillCompletes(t *testing.T) {
	e := newEnv(t, false)
	e.uploader.err = &upload.Error{Reason: upload.ServerError, Status: 500, Err: errors.New("non-2xx status")}
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	j := e.get(t, "j1")
	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.Empty(t, j.ArtifactID)
	assert.True(t, e.results.Exists("j1"))
	assert.Equal(t, 1, e.uploader.calls, "exactly one upload attempt, no retries")
	assert.Equal(t, 1, e.metrics.uploadsFailed)
	assert.Equal(t, 1, e.metrics.completed)
	assert.Zero(t, e.metrics.failed)
}

func TestRun_BestEffort_NotConfigured(t *testing.T) {
	e := newEnv(t, false)
	e.uploader.configured = false
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	j := e.get(t, "j1")
	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.Empty(t, j.ArtifactID)
	assert.Zero(t, e.uploader.calls)
}

func TestRun_UploadPayloadMatchesResultFile(t *testing.T) {
	e := newEnv(t, false)
	e.processor.sentences = []string{"qazaq tılı", "sälem"}
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	data, err := e.results.Read("j1")
	require.NoError(t, err)
	assert.Equal(t, data, e.uploader.gotPayload, "uploaded bytes differ from the stored result")
	assert.Equal(t, "j1.txt", e.uploader.gotName)
}

func TestRun_UnsupportedLanguage(t *testing.T) {
	e := newEnv(t, false)
	e.processor.sentences = nil
	e.processor.err = pipeline.ErrUnsupportedLanguage
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	j := e.get(t, "j1")
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Equal(t, "unsupported_language", j.Message)
	assert.Empty(t, j.ResultPath)
	assert.False(t, e.results.Exists("j1"))
	assert.Zero(t, e.uploader.calls)
}

func TestRun_DownloadFailure(t *testing.T) {
	e := newEnv(t, false)
	e.processor.err = &pipeline.DownloadError{
		Source: "oscar", Language: "kk", Err: errors.New("corpus file not provisioned"),
	}
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	j := e.get(t, "j1")
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Equal(t, "download_failed", j.Message)
	assert.NotEmpty(t, j.Error)
}

func TestRun_ZeroSentencesCompletes(t *testing.T) {
	e := newEnv(t, false)
	e.processor.sentences = nil
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	j := e.get(t, "j1")
	assert.Equal(t, job.StatusCompleted, j.Status)
	data, err := e.results.Read("j1")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestRun_BestEffort_ArtifactGuardedByStatus(t *testing.T) {
	e := newEnv(t, false)
	e.enqueue(t, "j1")

	require.NoError(t, e.ctl.Run(context.Background(), "j1"))

	j := e.get(t, "j1")
	require.Equal(t, job.StatusCompleted, j.Status)
	assert.Equal(t, "artifact-1", j.ArtifactID, "artifact must land on the still-completed record")
}

func TestRun_MissingJobAfterEnqueue(t *testing.T) {
	e := newEnv(t, false)

	// A job ID that was never persisted cannot be claimed; Run is a no-op.
	require.NoError(t, e.ctl.Run(context.Background(), "ghost"))
	assert.Zero(t, e.uploader.calls)
	assert.Zero(t, e.metrics.completed+e.metrics.failed)
}
