package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"bookings/internal/models"
)

type memoryEntry struct {
	window    models.BusyWindow
	expiresAt time.Time
}

// MemoryBusyCache is the in-process fallback cache. Expired entries are
// dropped on read.
type MemoryBusyCache struct {
	entries sync.Map
	now     func() time.Time
}

func NewMemoryBusyCache() *MemoryBusyCache {
	return &MemoryBusyCache{now: time.Now}
}

func (m *MemoryBusyCache) GetBusy(_ context.Context, key string) (*models.BusyWindow, error) {
	val, ok := m.entries.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if !m.now().Before(entry.expiresAt) {
		m.entries.CompareAndDelete(key, val)
		return nil, nil
	}
	window := entry.window
	return &window, nil
}

func (m *MemoryBusyCache) SetBusy(_ context.Context, key string, window models.BusyWindow, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.entries.Store(key, &memoryEntry{window: window, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryBusyCache) DeleteBusy(_ context.Context, prefix string) error {
	m.entries.Range(func(key, _ any) bool {
		if k, ok := key.(string); ok && strings.HasPrefix(k, prefix) {
			m.entries.Delete(key)
		}
		return true
	})
	return nil
}
