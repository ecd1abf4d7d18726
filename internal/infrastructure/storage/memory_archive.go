package storage

import (
	"context"
	"sync"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// MemoryPayloadArchive keeps archived payloads in memory. It is used when
// object storage is disabled and in tests.
type MemoryPayloadArchive struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string][]byte
}

// NewMemoryPayloadArchive creates an empty archive
func NewMemoryPayloadArchive(prefix string) *MemoryPayloadArchive {
	return &MemoryPayloadArchive{prefix: prefix, objects: make(map[string][]byte)}
}

// Archive stores a copy of the payload unless the key is already present.
func (m *MemoryPayloadArchive) Archive(_ context.Context, e *webhook.WebhookEvent) error {
	key := ArchiveKey(m.prefix, e)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return nil
	}
	m.objects[key] = append([]byte(nil), e.RawPayload...)
	return nil
}

// Get returns the payload stored under key.
func (m *MemoryPayloadArchive) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	return b, ok
}

// Len returns the number of archived payloads.
func (m *MemoryPayloadArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
