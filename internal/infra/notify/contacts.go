package notify

import (
	"log/slog"
	"sync"

	"github.com/Spok95/entry-gate/internal/domain/entry"
	"github.com/Spok95/entry-gate/internal/infra/fstore"
)

// Contacts maps canonical phone numbers to Telegram chat ids. It fills up as
// participants share their contact with the bot and is persisted so the
// mapping survives restarts.
type Contacts struct {
	mu    sync.Mutex
	path  string
	log   *slog.Logger
	chats map[string]int64
}

func NewContacts(path string, log *slog.Logger) *Contacts {
	return &Contacts{path: path, log: log, chats: make(map[string]int64)}
}

func (c *Contacts) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	loaded := make(map[string]int64)
	ok, err := fstore.Load(c.path, &loaded)
	if err != nil {
		return err
	}
	if ok {
		c.chats = loaded
		c.log.Info("contacts loaded", "count", len(loaded))
	}
	return nil
}

func (c *Contacts) Put(phone string, chatID int64) {
	phone = entry.NormalizePhone(phone)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats[phone] = chatID
	if err := fstore.Save(c.path, c.chats); err != nil {
		c.log.Error("contacts snapshot failed", "err", err)
	}
}

func (c *Contacts) Resolve(phone string) (int64, bool) {
	phone = entry.NormalizePhone(phone)
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.chats[phone]
	return id, ok
}

func (c *Contacts) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chats)
}
