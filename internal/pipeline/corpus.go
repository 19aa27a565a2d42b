package pipeline

import (
	"bufio"
	"compress/bzip2"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DownloadError means the corpus for the requested source/language could not
// be made available locally. It maps to a failed job with a recorded category.
type DownloadError struct {
	Source   string
	Language string
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("corpus unavailable for %s_%s: %v", e.Source, e.Language, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// CorpusProvider yields raw corpus sentences for a source/language pair.
type CorpusProvider interface {
	// Sentences returns up to limit non-empty lines. The limit here is a
	// fetch bound, not the final count: the caller still filters.
	Sentences(ctx context.Context, source, language string, limit int) ([]string, error)
}

// LocalCorpus serves sentences from dataDir/corpus/{source}_{language}.txt,
// materializing the file from the upstream Wikipedia dump when it is missing.
// OSCAR corpora are gated upstream and must be pre-provisioned.
type LocalCorpus struct {
	dataDir string
	client  *http.Client

	// dumpURL is swappable in tests; defaults to the Wikimedia dump layout.
	dumpURL func(language string) string
}

func NewLocalCorpus(dataDir string) *LocalCorpus {
	return &LocalCorpus{
		dataDir: dataDir,
		client:  &http.Client{Timeout: 30 * time.Minute},
		dumpURL: wikipediaDumpURL,
	}
}

func wikipediaDumpURL(language string) string {
	return fmt.Sprintf("https://dumps.wikimedia.org/%swiki/latest/%swiki-latest-pages-articles.xml.bz2",
		language, language)
}

func (c *LocalCorpus) path(source, language string) string {
	return filepath.Join(c.dataDir, "corpus", fmt.Sprintf("%s_%s.txt", source, language))
}

func (c *LocalCorpus) Sentences(ctx context.Context, source, language string, limit int) ([]string, error) {
	path := c.path(source, language)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if source != "wikipedia" {
			return nil, &DownloadError{Source: source, Language: language,
				Err: errors.New("corpus file not provisioned")}
		}
		if err := c.materializeWikipedia(ctx, language, path, limit); err != nil {
			return nil, &DownloadError{Source: source, Language: language, Err: err}
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat corpus file: %w", err)
	}

	return readLines(path, limit)
}

func readLines(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		lines = append(lines, s)
		if limit > 0 && len(lines) >= limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read corpus file: %w", err)
	}
	return lines, nil
}

var markupRe = regexp.MustCompile(`(?s)<.*?>`)

// materializeWikipedia streams the latest pages-articles dump for language,
// splits article text into sentences and writes up to limit of them to dest.
// A dump yielding nothing leaves no file behind and reports an error.
func (c *LocalCorpus) materializeWikipedia(ctx context.Context, language, dest string, limit int) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dumpURL(language), nil)
	if err != nil {
		return fmt.Errorf("create dump request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch dump: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch dump: status %d", resp.StatusCode)
	}

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create corpus file: %w", err)
	}
	defer os.Remove(tmp)
	defer out.Close()

	w := bufio.NewWriter(out)
	written, err := extractSentences(bzip2.NewReader(resp.Body), w, limit)
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush corpus file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close corpus file: %w", err)
	}
	if written == 0 {
		return errors.New("dump yielded no sentences")
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("publish corpus file: %w", err)
	}
	return nil
}

// extractSentences walks the dump XML, pulls <text> elements, strips residual
// markup and splits on sentence punctuation. Returns the number written.
func extractSentences(r io.Reader, w io.Writer, limit int) (int, error) {
	dec := xml.NewDecoder(r)
	written := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("decode dump: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "text" {
			continue
		}
		var body string
		if err := dec.DecodeElement(&body, &start); err != nil {
			return written, fmt.Errorf("decode page text: %w", err)
		}
		txt := html.UnescapeString(markupRe.ReplaceAllString(body, " "))
		for _, s := range splitSentences(txt) {
			if _, err := io.WriteString(w, s+"\n"); err != nil {
				return written, fmt.Errorf("write sentence: %w", err)
			}
			written++
			if limit > 0 && written >= limit {
				return written, nil
			}
		}
	}
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
