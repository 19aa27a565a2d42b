package job

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true for statuses that represent a final state.
// Terminal jobs are write-once: no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var validSources = map[string]bool{
	"oscar":     true,
	"wikipedia": true,
}

var validLanguages = map[string]bool{
	"kk": true,
	"ky": true,
	"uz": true,
	"tr": true,
	"ug": true,
}

const (
	DefaultMaxSentences = 1000
	MaxMaxSentences     = 100000
	DefaultThreshold    = 0.95
)

// Params are the processing parameters of a job, immutable after creation.
type Params struct {
	Source              string  `json:"source"`
	Language            string  `json:"language"`
	MaxSentences        int     `json:"max_sentences"`
	Transliterate       bool    `json:"transliterate"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

type Job struct {
	ID         string    `json:"job_id"`
	Params     Params    `json:"params"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	ResultPath string    `json:"-"`
	ArtifactID string    `json:"artifact_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateRequest is the payload used to submit a new job.
// Optional fields are pointers so "absent" and "zero" stay distinguishable.
type CreateRequest struct {
	Source              string   `json:"source"`
	Language            string   `json:"language"`
	MaxSentences        *int     `json:"max_sentences,omitempty"`
	Transliterate       *bool    `json:"transliterate,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

// Validate checks the request and returns normalized immutable Params.
func (r *CreateRequest) Validate() (Params, error) {
	p := Params{
		Source:              r.Source,
		Language:            r.Language,
		MaxSentences:        DefaultMaxSentences,
		Transliterate:       true,
		ConfidenceThreshold: DefaultThreshold,
	}

	if !validSources[p.Source] {
		return Params{}, errors.New("source must be one of: oscar, wikipedia")
	}
	if !validLanguages[p.Language] {
		return Params{}, errors.New("language must be one of: kk, ky, uz, tr, ug")
	}
	if r.MaxSentences != nil {
		if *r.MaxSentences <= 0 {
			return Params{}, errors.New("max_sentences must be > 0")
		}
		if *r.MaxSentences > MaxMaxSentences {
			return Params{}, fmt.Errorf("max_sentences must be <= %d", MaxMaxSentences)
		}
		p.MaxSentences = *r.MaxSentences
	}
	if r.Transliterate != nil {
		p.Transliterate = *r.Transliterate
	}
	if r.ConfidenceThreshold != nil {
		if *r.ConfidenceThreshold < 0 || *r.ConfidenceThreshold > 1 {
			return Params{}, errors.New("confidence_threshold must be between 0 and 1")
		}
		p.ConfidenceThreshold = *r.ConfidenceThreshold
	}

	return p, nil
}
