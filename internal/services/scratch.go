package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Scratch is a run-scoped temporary directory. Every file handed out is
// tracked so Cleanup can remove it regardless of how the run ended.
type Scratch struct {
	dir     string
	mu      sync.Mutex
	files   []string
	cleaned bool
}

// NewScratch creates <root>/<runID>/.
func NewScratch(root, runID string) (*Scratch, error) {
	if runID == "" {
		return nil, fmt.Errorf("scratch run id is required")
	}
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

func (s *Scratch) Dir() string { return s.dir }

// Path reserves a file name inside the scratch directory.
func (s *Scratch) Path(name string) string {
	p := filepath.Join(s.dir, filepath.Base(name))
	s.mu.Lock()
	s.files = append(s.files, p)
	s.mu.Unlock()
	return p
}

// WriteFile writes data to a tracked file and returns its path.
func (s *Scratch) WriteFile(name string, data []byte) (string, error) {
	p := s.Path(name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write scratch file %s: %w", name, err)
	}
	return p, nil
}

// Files lists every path handed out so far.
func (s *Scratch) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.files))
	copy(out, s.files)
	return out
}

// Cleanup removes all tracked files and the directory itself. Missing files
// are not an error. Safe to call more than once.
func (s *Scratch) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleaned {
		return nil
	}

	var errs []error
	for _, p := range s.files {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		errs = append(errs, err)
	}
	s.cleaned = true
	return errors.Join(errs...)
}
