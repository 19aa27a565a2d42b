// Package results stores produced sentence files, one UTF-8 sentence per
// line. Files are written once by the lifecycle controller and read-only
// afterwards; a job's processing status is never taken as evidence that a
// file exists here.
package results

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

type Store struct {
	dir string
}

// NewStore roots the result files at dataDir/results.
func NewStore(dataDir string) *Store {
	return &Store{dir: filepath.Join(dataDir, "results")}
}

// Path returns the location a job's result lives at, whether or not it exists.
func (s *Store) Path(jobID string) string {
	return filepath.Join(s.dir, jobID+".txt")
}

// Exists reports whether the result file for jobID is present.
func (s *Store) Exists(jobID string) bool {
	_, err := os.Stat(s.Path(jobID))
	return err == nil
}

// Write persists the sentences for jobID and returns the file path. The write
// goes through a temp file and rename so readers never observe a partial file.
func (s *Store) Write(jobID string, sentences []string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	dest := s.Path(jobID)
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create result file: %w", err)
	}
	defer os.Remove(tmp)

	w := bufio.NewWriter(f)
	for _, sentence := range sentences {
		if _, err := w.WriteString(sentence + "\n"); err != nil {
			f.Close()
			return "", fmt.Errorf("write result file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("flush result file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close result file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("publish result file: %w", err)
	}
	return dest, nil
}

// Read returns the raw bytes of a job's result file.
func (s *Store) Read(jobID string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(jobID))
	if err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	return data, nil
}
