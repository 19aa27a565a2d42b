package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/turkicnlp/corpusd/internal/job"
	"github.com/turkicnlp/corpusd/internal/results"
)

// Enqueuer hands accepted job IDs to the worker pool.
type Enqueuer interface {
	Enqueue(jobID string) error
}

// Metrics is the slice of the collector the handlers touch.
type Metrics interface {
	JobEnqueued()
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	store   job.Store
	queue   Enqueuer
	results *results.Store
	metrics Metrics
	dataDir string
}

// NewHandler constructs a Handler with the given dependencies.
// metrics may be nil.
func NewHandler(store job.Store, queue Enqueuer, res *results.Store, metrics Metrics, dataDir string) *Handler {
	return &Handler{store: store, queue: queue, results: res, metrics: metrics, dataDir: dataDir}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/v1/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}/result", h.GetJobResult)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// CreateJob handles POST /api/v1/jobs and responds 202 with the created job.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB max
	var req job.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	params, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	j := &job.Job{
		ID:        uuid.New().String(),
		Params:    params,
		Status:    job.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.Create(r.Context(), j); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	if err := h.queue.Enqueue(j.ID); err != nil {
		// The record stays queued; the sweep cannot help here, so surface
		// backpressure to the client instead of stranding the job silently.
		writeError(w, http.StatusServiceUnavailable, "queue full, retry later")
		return
	}

	if h.metrics != nil {
		h.metrics.JobEnqueued()
	}
	writeJSON(w, http.StatusAccepted, h.statusDoc(j))
}

// ListJobs handles GET /api/v1/jobs and responds 200 with a paginated list of jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r.URL.Query().Get("limit"), 20)
	offset := parseIntParam(r.URL.Query().Get("offset"), 0)

	jobs, total, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	docs := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		docs = append(docs, h.statusDoc(j))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   docs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetJob handles GET /api/v1/jobs/{id} and responds 200 with the status document.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	j, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, h.statusDoc(j))
}

// GetJobResult handles GET /api/v1/jobs/{id}/result.
// 404 when the record is absent, 425 while non-terminal, 410 for failed jobs
// or an expired file, otherwise the sentence file is streamed.
func (h *Handler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	j, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !j.Status.IsTerminal() {
		writeError(w, http.StatusTooEarly, "job not completed")
		return
	}
	if j.Status == job.StatusFailed {
		writeError(w, http.StatusGone, "job failed")
		return
	}
	if !h.results.Exists(id) {
		writeError(w, http.StatusGone, "job result expired")
		return
	}

	f, err := os.Open(h.results.Path(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open result")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="result_`+id+`.txt"`)
	http.ServeContent(w, r, "result_"+id+".txt", j.UpdatedAt, f)
}

// Health handles GET /api/v1/health and responds 200.
// Degraded when the data volume is missing.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	volume := true
	if _, err := os.Stat(h.dataDir); err != nil {
		status = "degraded"
		volume = false
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "volume": volume})
}

// statusDoc is the client-facing view of a job. result_url appears only once
// the job is completed and the file is actually present.
func (h *Handler) statusDoc(j *job.Job) map[string]any {
	doc := map[string]any{
		"job_id":     j.ID,
		"status":     j.Status,
		"progress":   j.Progress,
		"params":     j.Params,
		"created_at": j.CreatedAt,
		"updated_at": j.UpdatedAt,
	}
	if j.Message != "" {
		doc["message"] = j.Message
	}
	if j.Error != "" {
		doc["error"] = j.Error
	}
	if j.ArtifactID != "" {
		doc["artifact_id"] = j.ArtifactID
	}
	if j.Status == job.StatusCompleted && h.results.Exists(j.ID) {
		doc["result_url"] = "/api/v1/jobs/" + j.ID + "/result"
	}
	return doc
}

func parseIntParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
