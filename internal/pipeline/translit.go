package pipeline

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnsupportedLanguage is returned when transliteration is requested for a
// language without a rule table.
var ErrUnsupportedLanguage = errors.New("transliteration not supported for language")

// Transliterator maps a sentence to its Latin form. Deterministic: the same
// input always produces the same output.
type Transliterator interface {
	Transliterate(text string) string
}

// kk follows the 2021 Kazakh Latin alphabet.
var kkTable = map[rune]string{
	'а': "a", 'ә': "ä", 'б': "b", 'в': "v", 'г': "g", 'ғ': "ğ",
	'д': "d", 'е': "e", 'ё': "io", 'ж': "j", 'з': "z", 'и': "i",
	'й': "i", 'к': "k", 'қ': "q", 'л': "l", 'м': "m", 'н': "n",
	'ң': "ñ", 'о': "o", 'ө': "ö", 'п': "p", 'р': "r", 'с': "s",
	'т': "t", 'у': "u", 'ұ': "ū", 'ү': "ü", 'ф': "f", 'х': "h",
	'һ': "h", 'ц': "ts", 'ч': "ch", 'ш': "ş", 'щ': "şş", 'ъ': "",
	'ы': "y", 'і': "ı", 'ь': "", 'э': "e", 'ю': "iu", 'я': "ia",
}

var kyTable = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e",
	'ё': "yo", 'ж': "j", 'з': "z", 'и': "i", 'й': "y", 'к': "k",
	'л': "l", 'м': "m", 'н': "n", 'ң': "ñ", 'о': "o", 'ө': "ö",
	'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ү': "ü",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// uz follows the official Uzbek Latin orthography.
var uzTable = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e",
	'ё': "yo", 'ж': "j", 'з': "z", 'и': "i", 'й': "y", 'к': "k",
	'л': "l", 'м': "m", 'н': "n", 'о': "o", 'п': "p", 'р': "r",
	'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "x", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'ъ': "ʼ", 'ь': "", 'э': "e", 'ю': "yu",
	'я': "ya", 'ў': "oʻ", 'қ': "q", 'ғ': "gʻ", 'ҳ': "h",
}

// tableTransliterator rewrites Cyrillic runes through a mapping table and
// NFC-normalizes the output. Unmapped runes pass through unchanged.
type tableTransliterator struct {
	table map[rune]string
}

func (t *tableTransliterator) Transliterate(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		lower := unicode.ToLower(r)
		mapped, ok := t.table[lower]
		if !ok {
			b.WriteRune(r)
			continue
		}
		if r != lower && mapped != "" {
			// Preserve capitalization of the source rune.
			first, size := utf8.DecodeRuneInString(mapped)
			mapped = string(unicode.ToUpper(first)) + mapped[size:]
		}
		b.WriteString(mapped)
	}
	out, _, err := transform.String(norm.NFC, b.String())
	if err != nil {
		return b.String()
	}
	return out
}

// identityTransliterator is used for languages already written in Latin script.
type identityTransliterator struct{}

func (identityTransliterator) Transliterate(text string) string { return text }

// NewTransliterator returns the rule table for lang, or ErrUnsupportedLanguage.
// Uyghur is Arabic-script and has no rule table here.
func NewTransliterator(lang string) (Transliterator, error) {
	switch lang {
	case "kk":
		return &tableTransliterator{table: kkTable}, nil
	case "ky":
		return &tableTransliterator{table: kyTable}, nil
	case "uz":
		return &tableTransliterator{table: uzTable}, nil
	case "tr":
		return identityTransliterator{}, nil
	default:
		return nil, ErrUnsupportedLanguage
	}
}
