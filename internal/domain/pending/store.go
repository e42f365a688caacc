// Package pending tracks transactions that paid but have not been admitted
// yet. While a transaction id is present here, the mapped single-use key is
// the sole proof its QR code has not been consumed.
package pending

import (
	"log/slog"
	"sync"

	"github.com/Spok95/entry-gate/internal/infra/fstore"
)

type Store struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
	keys map[string]string
}

func NewStore(path string, log *slog.Logger) *Store {
	return &Store{
		path: path,
		log:  log,
		keys: make(map[string]string),
	}
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loaded := make(map[string]string)
	ok, err := fstore.Load(s.path, &loaded)
	if err != nil {
		return err
	}
	if ok {
		s.keys = loaded
		s.log.Info("pending keys loaded", "count", len(loaded))
	}
	return nil
}

// Put records the key for a transaction, overwriting any previous one:
// re-minting a QR invalidates the earlier token for the same transaction.
func (s *Store) Put(tid, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[tid] = key
	s.persist()
}

func (s *Store) Get(tid string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[tid]
	return key, ok
}

// Remove consumes the key. This is the single irreversible transition out of
// "pending"; it happens only when a session timer actually starts.
func (s *Store) Remove(tid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[tid]; !ok {
		return
	}
	delete(s.keys, tid)
	s.persist()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// persist must be called with the lock held.
func (s *Store) persist() {
	if err := fstore.Save(s.path, s.keys); err != nil {
		s.log.Error("pending key snapshot failed", "err", err)
	}
}
