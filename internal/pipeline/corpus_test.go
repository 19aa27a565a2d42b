package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpusFile(t *testing.T, dataDir, name, content string) {
	t.Helper()
	dir := filepath.Join(dataDir, "corpus")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestSentences_ReadsProvisionedFile(t *testing.T) {
	dataDir := t.TempDir()
	writeCorpusFile(t, dataDir, "oscar_kk.txt", "бір\n\n  екі  \nүш\n")

	c := NewLocalCorpus(dataDir)
	got, err := c.Sentences(context.Background(), "oscar", "kk", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"бір", "екі", "үш"}, got)
}

func TestSentences_HonorsLimit(t *testing.T) {
	dataDir := t.TempDir()
	writeCorpusFile(t, dataDir, "oscar_kk.txt", "a\nb\nc\nd\n")

	c := NewLocalCorpus(dataDir)
	got, err := c.Sentences(context.Background(), "oscar", "kk", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSentences_MissingOscarCorpus(t *testing.T) {
	c := NewLocalCorpus(t.TempDir())

	_, err := c.Sentences(context.Background(), "oscar", "kk", 10)
	var de *DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "oscar", de.Source)
	assert.Equal(t, "kk", de.Language)
}

func TestSentences_DumpFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewLocalCorpus(t.TempDir())
	c.dumpURL = func(string) string { return srv.URL }

	_, err := c.Sentences(context.Background(), "wikipedia", "kk", 10)
	var de *DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "wikipedia", de.Source)
}

func TestSentences_DumpFailureLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	c := NewLocalCorpus(dataDir)
	c.dumpURL = func(string) string { return srv.URL }

	_, err := c.Sentences(context.Background(), "wikipedia", "kk", 10)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dataDir, "corpus", "wikipedia_kk.txt"))
	assert.True(t, os.IsNotExist(statErr), "failed materialization must not publish a file")
}

func TestExtractSentences(t *testing.T) {
	dump := `<mediawiki>
  <page>
    <revision>
      <text>Бірінші сөйлем. Екінші сөйлем! Үшінші сөйлем?</text>
    </revision>
  </page>
  <page>
    <revision>
      <text>&lt;ref name="x"&gt;Төртінші сөйлем.</text>
    </revision>
  </page>
</mediawiki>`

	var b strings.Builder
	n, err := extractSentences(strings.NewReader(dump), &b, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Бірінші сөйлем", lines[0])
	// Residual markup tags are stripped before splitting.
	assert.Equal(t, "Төртінші сөйлем", lines[3])
}

func TestExtractSentences_Limit(t *testing.T) {
	dump := `<mediawiki><page><revision><text>One. Two. Three. Four.</text></revision></page></mediawiki>`

	var b strings.Builder
	n, err := extractSentences(strings.NewReader(dump), &b, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Бір сөйлем.  Екі   сөйлем!\nҮш сөйлем? ")
	assert.Equal(t, []string{"Бір сөйлем", "Екі сөйлем", "Үш сөйлем"}, got)
}

func TestSplitSentences_Empty(t *testing.T) {
	assert.Empty(t, splitSentences("   ... !!! "))
}
