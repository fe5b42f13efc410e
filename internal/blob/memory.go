package blob

import (
	"context"
	"sync"
	"time"
)

type object struct {
	info Info
	data []byte
}

// Memory is an in-process Store used by default and in tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemory() *Memory {
	return &Memory{objects: map[string]object{}}
}

func (m *Memory) Put(_ context.Context, key, contentType string, data []byte) (Info, error) {
	info := Info{Key: key, Size: int64(len(data)), ContentType: contentType, StoredAt: time.Now().UTC()}
	m.mu.Lock()
	m.objects[key] = object{info: info, data: append([]byte(nil), data...)}
	m.mu.Unlock()
	return info, nil
}

func (m *Memory) Get(_ context.Context, key string) (Info, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Info{}, nil, ErrNotFound
	}
	return obj.info, append([]byte(nil), obj.data...), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}
