// Package runstate records the outcome of recent sync runs in a small YAML
// file (snippetsync.state) in the data directory, so `status` can show when
// the last run happened and how it went.
package runstate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the state file name inside the data directory.
const FileName = "snippetsync.state"

// Version is the state file format version.
const Version = 1

// MaxHistory is the number of runs kept.
const MaxHistory = 10

// Run is the summary of one sync run.
type Run struct {
	ID       string         `yaml:"id"`
	Started  time.Time      `yaml:"started"`
	Finished time.Time      `yaml:"finished"`
	Root     string         `yaml:"root"`
	Counts   map[string]int `yaml:"counts,omitempty"`
	Failures int            `yaml:"failures"`
	Fatal    string         `yaml:"fatal,omitempty"`
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// OK reports whether the run finished without a fatal error.
func (r Run) OK() bool { return r.Fatal == "" }

// State is the content of the state file.
type State struct {
	Version int   `yaml:"version"`
	Runs    []Run `yaml:"runs"`

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// New returns an empty state that saves to dir.
func New(dir string) *State {
	return &State{Version: Version, path: filepath.Join(dir, FileName)}
}

// Load reads the state file from dir. A missing file yields an empty state.
func Load(dir string) (*State, error) {
	st := New(dir)
	path := st.path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	st.path = path
	return st, nil
}

// Record prepends r to the history, dropping the oldest runs beyond
// MaxHistory.
func (s *State) Record(r Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Runs = append([]Run{r}, s.Runs...)
	if len(s.Runs) > MaxHistory {
		s.Runs = s.Runs[:MaxHistory]
	}
}

// Last returns the most recent run.
func (s *State) Last() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.Runs) == 0 {
		return Run{}, false
	}
	return s.Runs[0], true
}

// Save writes the state file, creating the data directory if needed.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return fmt.Errorf("state file path not set")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(s.path), err)
	}

	s.Version = Version
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// Path returns the state file path.
func (s *State) Path() string {
	return s.path
}
