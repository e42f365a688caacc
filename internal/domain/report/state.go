package report

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Spok95/entry-gate/internal/infra/fstore"
)

type stateFile struct {
	LastHourlyReport *time.Time `json:"last_hourly_report,omitempty"`
}

// State is the single persisted scalar owned by the reporting task: the
// timestamp of the last emitted report.
type State struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
	last *time.Time
}

func NewState(path string, log *slog.Logger) *State {
	return &State{path: path, log: log}
}

func (s *State) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var f stateFile
	if _, err := fstore.Load(s.path, &f); err != nil {
		return err
	}
	s.last = f.LastHourlyReport
	return nil
}

func (s *State) LastReport() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return time.Time{}, false
	}
	return *s.last, true
}

func (s *State) SetLastReport(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &t
	if err := fstore.Save(s.path, stateFile{LastHourlyReport: &t}); err != nil {
		s.log.Error("server state snapshot failed", "err", err)
	}
}
