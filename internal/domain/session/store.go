package session

import (
	"log/slog"
	"sync"

	"github.com/Spok95/entry-gate/internal/infra/fstore"
)

// Store holds active sessions keyed by transaction id and snapshots the whole
// map to disk on every mutation. A failed write is logged and retried on the
// next mutation; in-memory state stays authoritative for the running process.
type Store struct {
	mu       sync.Mutex
	path     string
	log      *slog.Logger
	sessions map[string]Session
}

func NewStore(path string, log *slog.Logger) *Store {
	return &Store{
		path:     path,
		log:      log,
		sessions: make(map[string]Session),
	}
}

// Load reads the snapshot from disk. A missing file means a fresh deployment.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loaded := make(map[string]Session)
	ok, err := fstore.Load(s.path, &loaded)
	if err != nil {
		return err
	}
	if ok {
		s.sessions = loaded
		s.log.Info("sessions loaded", "count", len(loaded))
	}
	return nil
}

func (s *Store) Put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.TransactionID] = sess
	s.persist()
}

func (s *Store) Get(tid string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tid]
	return sess, ok
}

// Remove deletes a session and reports whether it was present, so expiry
// stays a no-op when a second timer reaches the same id.
func (s *Store) Remove(tid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tid]; !ok {
		return false
	}
	delete(s.sessions, tid)
	s.persist()
	return true
}

func (s *Store) List() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// persist must be called with the lock held.
func (s *Store) persist() {
	if err := fstore.Save(s.path, s.sessions); err != nil {
		s.log.Error("session snapshot failed", "err", err)
	}
}
