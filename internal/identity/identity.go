// Package identity hands out the per-device client identifier used to attribute remote writes.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ClientIDKey is the storage key the client id is persisted under.
const ClientIDKey = "dealbook.clientId"

// Storage is durable per-device key/value storage.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// creator is implemented by storage that can create a key atomically, keeping a value
// another process wrote first.
type creator interface {
	GetOrSet(key, value string) (string, error)
}

// Provider returns a stable client id. The first call reads or creates it; later calls
// return the cached value.
type Provider struct {
	storage Storage
	newID   func() string

	once sync.Once
	id   string
	// persisted is false when storage failed and the id only lives for this process.
	persisted bool
}

// NewProvider creates a provider backed by storage. A nil storage behaves as unavailable.
func NewProvider(storage Storage) *Provider {
	if storage == nil {
		storage = UnavailableStorage{}
	}
	return &Provider{storage: storage, newID: GenerateClientID}
}

// ClientID returns the device's client id, creating and persisting it on first use.
func (p *Provider) ClientID() string {
	p.once.Do(p.load)
	return p.id
}

// Persisted reports whether the id is stored durably.
func (p *Provider) Persisted() bool {
	p.once.Do(p.load)
	return p.persisted
}

func (p *Provider) load() {
	existing, ok, err := p.storage.Get(ClientIDKey)
	if err != nil {
		slog.Warn("identity: storage unavailable, using session client id", "err", err)
		p.id = p.newID()
		return
	}
	if ok && existing != "" {
		p.id = existing
		p.persisted = true
		return
	}

	id := p.newID()
	if c, ok := p.storage.(creator); ok {
		stored, err := c.GetOrSet(ClientIDKey, id)
		if err != nil {
			slog.Warn("identity: persist client id", "err", err)
			p.id = id
			return
		}
		if stored != id {
			slog.Debug("identity: adopted client id created concurrently", "id", stored)
		}
		p.id = stored
		p.persisted = true
		return
	}

	if err := p.storage.Set(ClientIDKey, id); err != nil {
		slog.Warn("identity: persist client id", "err", err)
		p.id = id
		return
	}
	p.id = id
	p.persisted = true
}

// GenerateClientID returns a random UUID, falling back to a timestamp plus random
// suffix when the UUID source fails.
func GenerateClientID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x-%x", time.Now().UnixMilli(), time.Now().UnixNano())
	}
	return fmt.Sprintf("%x-%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
