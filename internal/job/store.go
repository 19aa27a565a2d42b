package job

import (
	"context"
	"time"
)

// Fields is a partial update: only non-nil members are written.
// Every applied update also advances updated_at.
type Fields struct {
	Status     *Status
	Progress   *int
	Message    *string
	Error      *string
	ResultPath *string
	ArtifactID *string
}

// Store persists and retrieves jobs. SetIfStatus is the compare-and-swap
// that serializes all transitions for a given job across workers; it is the
// only synchronization device the rest of the system relies on.
type Store interface {
	Create(ctx context.Context, j *Job) error
	// Get returns (nil, nil) when the record does not exist. Absence is a
	// distinct case from any status value.
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, f Fields) error
	// SetIfStatus applies f only if the job's current status equals expected.
	// Returns false when the guard does not match (including absent records).
	SetIfStatus(ctx context.Context, id string, expected Status, f Fields) (bool, error)
	// List returns a page of jobs ordered by created_at DESC, plus the total count.
	List(ctx context.Context, limit, offset int) ([]*Job, int, error)
	// ResetProcessing moves all "processing" jobs back to "queued" and returns their IDs.
	// Called at startup to recover jobs that were interrupted by a crash.
	ResetProcessing(ctx context.Context) ([]string, error)
	// StaleProcessing returns IDs of jobs still "processing" whose updated_at
	// is older than cutoff. Input for the reconciliation sweep.
	StaleProcessing(ctx context.Context, cutoff time.Time) ([]string, error)
	Close() error
}

func statusPtr(s Status) *Status { return &s }
func intPtr(n int) *int          { return &n }
func strPtr(s string) *string    { return &s }

// Convenience constructors used by the controller and sweep.

// SetStatus builds a Fields that only changes the status.
func SetStatus(s Status) Fields { return Fields{Status: statusPtr(s)} }

// SetProgress builds a Fields carrying an advisory progress/message update.
func SetProgress(progress int, message string) Fields {
	return Fields{Progress: intPtr(progress), Message: strPtr(message)}
}

// SetFailed builds the terminal failure update.
func SetFailed(message, errText string) Fields {
	return Fields{
		Status:   statusPtr(StatusFailed),
		Progress: intPtr(100),
		Message:  strPtr(message),
		Error:    strPtr(errText),
	}
}

// SetCompleted builds the terminal success update exposing the result.
func SetCompleted(resultPath, artifactID string) Fields {
	f := Fields{
		Status:     statusPtr(StatusCompleted),
		Progress:   intPtr(100),
		Message:    strPtr("done"),
		ResultPath: strPtr(resultPath),
	}
	if artifactID != "" {
		f.ArtifactID = strPtr(artifactID)
	}
	return f
}

// SetArtifact builds the post-completion artifact_id update (best-effort mode).
func SetArtifact(artifactID string) Fields {
	return Fields{ArtifactID: strPtr(artifactID)}
}
