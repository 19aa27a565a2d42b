package lifecycle

import "log/slog"

// Phase names the step of the controller a given event belongs to.
type Phase string

const (
	PhaseDequeue  Phase = "dequeue"
	PhasePipeline Phase = "pipeline"
	PhasePersist  Phase = "persist"
	PhaseUpload   Phase = "upload"
	PhaseFinalize Phase = "finalize"
)

// Outcome is the result of a phase.
type Outcome string

const (
	OutcomeOK   Outcome = "ok"
	OutcomeSkip Outcome = "skip"
	OutcomeFail Outcome = "fail"
)

// Event is one structured observation of a job's progress through the
// lifecycle. Correctness never depends on these; they exist for observers.
type Event struct {
	JobID   string
	Phase   Phase
	Outcome Outcome
	Detail  string
}

// Emitter receives lifecycle events. Implementations must not block.
type Emitter interface {
	Emit(e Event)
}

// SlogEmitter logs events through a slog.Logger.
type SlogEmitter struct {
	Logger *slog.Logger
}

func (s *SlogEmitter) Emit(e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"job_id", e.JobID, "phase", string(e.Phase), "outcome", string(e.Outcome)}
	if e.Detail != "" {
		attrs = append(attrs, "detail", e.Detail)
	}
	if e.Outcome == OutcomeFail {
		logger.Warn("job phase", attrs...)
		return
	}
	logger.Info("job phase", attrs...)
}

// NopEmitter discards events.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}
