package pipeline

import (
	"context"
	"fmt"
)

// Spec are the inputs of one processing run.
type Spec struct {
	Source              string
	Language            string
	MaxSentences        int
	Transliterate       bool
	ConfidenceThreshold float64
}

// Processor turns a spec into an ordered list of sentences. Implementations
// must be pure and re-entrant: no job state, no durable writes beyond the
// corpus cache.
type Processor interface {
	Process(ctx context.Context, spec Spec) ([]string, error)
}

// Pipeline is the production Processor: corpus acquisition, language filter,
// optional transliteration, truncation.
type Pipeline struct {
	corpus CorpusProvider

	// newFilter is swappable in tests.
	newFilter func(lang string, threshold float64) *langFilter
}

func New(corpus CorpusProvider) *Pipeline {
	return &Pipeline{corpus: corpus, newFilter: newLangFilter}
}

// oversample bounds how many raw sentences are fetched per kept sentence
// when the confidence filter is active.
const oversample = 20

func (p *Pipeline) Process(ctx context.Context, spec Spec) ([]string, error) {
	var trans Transliterator
	if spec.Transliterate {
		t, err := NewTransliterator(spec.Language)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, spec.Language)
		}
		trans = t
	}

	fetchBound := spec.MaxSentences
	filtering := spec.ConfidenceThreshold > 0
	if filtering {
		fetchBound = spec.MaxSentences * oversample
	}

	raw, err := p.corpus.Sentences(ctx, spec.Source, spec.Language, fetchBound)
	if err != nil {
		return nil, err
	}

	filter := p.newFilter(spec.Language, spec.ConfidenceThreshold)

	out := make([]string, 0, spec.MaxSentences)
	for _, s := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !filter.Keep(s) {
			continue
		}
		if trans != nil {
			s = trans.Transliterate(s)
		}
		out = append(out, s)
		if len(out) >= spec.MaxSentences {
			break
		}
	}
	return out, nil
}
