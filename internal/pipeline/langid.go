package pipeline

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// detection is the subset of a language-ID result the filter cares about.
type detection struct {
	Lang       string // ISO 639-1 code, "" when unknown
	Confidence float64
}

// detectFunc classifies a sentence. Overridable so tests can pin predictions.
type detectFunc func(text string) detection

func detect(text string) detection {
	info := whatlanggo.Detect(strings.ReplaceAll(text, "\n", " "))
	return detection{
		Lang:       info.Lang.Iso6391(),
		Confidence: info.Confidence,
	}
}

// langFilter keeps sentences identified as the target language with at least
// the given confidence. A threshold of 0 disables filtering entirely.
type langFilter struct {
	lang      string
	threshold float64
	detect    detectFunc
}

func newLangFilter(lang string, threshold float64) *langFilter {
	return &langFilter{lang: lang, threshold: threshold, detect: detect}
}

func (f *langFilter) Keep(sentence string) bool {
	if f.threshold <= 0 {
		return true
	}
	d := f.detect(sentence)
	return d.Lang == f.lang && d.Confidence >= f.threshold
}
