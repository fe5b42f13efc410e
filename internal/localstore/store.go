// File: internal/localstore/store.go
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iyunix/go-telemed/internal/domain"
)

// Well-known keys outside the collection namespace.
const (
	KeyCurrentUser = "currentUser"
)

// Store keeps each collection as one serialized id -> record mapping under
// the collection's name. Every write reads, mutates and rewrites the whole
// mapping while holding the store lock.
type Store struct {
	kv KV
	mu sync.Mutex
}

func New(kv KV) *Store {
	return &Store{kv: kv}
}

func (s *Store) Close() error {
	return s.kv.Close()
}

// load must be called with s.mu held.
func (s *Store) load(ctx context.Context, c domain.Collection) (map[string]json.RawMessage, error) {
	raw, ok, err := s.kv.Load(ctx, c.String())
	if err != nil {
		return nil, err
	}
	m := map[string]json.RawMessage{}
	if !ok || len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("corrupt %s collection: %w", c, err)
	}
	return m, nil
}

// save must be called with s.mu held.
func (s *Store) save(ctx context.Context, c domain.Collection, m map[string]json.RawMessage) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.kv.Save(ctx, c.String(), raw)
}

// Put inserts or fully replaces the record stored at id.
func (s *Store) Put(ctx context.Context, c domain.Collection, id string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load(ctx, c)
	if err != nil {
		return err
	}
	m[id] = raw
	return s.save(ctx, c, m)
}

// Get decodes the record at id into out, or returns domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, c domain.Collection, id string, out any) error {
	s.mu.Lock()
	m, err := s.load(ctx, c)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	raw, ok := m[id]
	if !ok {
		return domain.ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

// Patch shallow-merges partial onto the record at id and returns the result.
func (s *Store) Patch(ctx context.Context, c domain.Collection, id string, partial map[string]any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load(ctx, c)
	if err != nil {
		return nil, err
	}
	raw, ok := m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("corrupt %s/%s: %w", c, id, err)
	}
	for k, v := range partial {
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", c, id, err)
	}
	m[id] = merged
	if err := s.save(ctx, c, m); err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete removes the record at id, or returns domain.ErrNotFound.
func (s *Store) Delete(ctx context.Context, c domain.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load(ctx, c)
	if err != nil {
		return err
	}
	if _, ok := m[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m, id)
	return s.save(ctx, c, m)
}

// QueryByField scans c for records whose top-level field equals value.
// Results come back in id order.
func (s *Store) QueryByField(ctx context.Context, c domain.Collection, field, value string) ([]json.RawMessage, error) {
	all, err := s.All(ctx, c)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []json.RawMessage
	for _, id := range ids {
		var fields map[string]any
		if err := json.Unmarshal(all[id], &fields); err != nil {
			return nil, fmt.Errorf("corrupt %s/%s: %w", c, id, err)
		}
		if v, ok := fields[field].(string); ok && v == value {
			out = append(out, all[id])
		}
	}
	return out, nil
}

// All returns a copy of the whole collection mapping.
func (s *Store) All(ctx context.Context, c domain.Collection) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, c)
}

// Clear drops every record in c.
func (s *Store) Clear(ctx context.Context, c domain.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Remove(ctx, c.String())
}

// Export dumps every collection.
func (s *Store) Export(ctx context.Context) (domain.Export, error) {
	exp := domain.Export{
		Collections: map[domain.Collection]map[string]json.RawMessage{},
		ExportDate:  time.Now().UTC(),
	}
	for _, c := range domain.AllCollections {
		m, err := s.All(ctx, c)
		if err != nil {
			return domain.Export{}, err
		}
		exp.Collections[c] = m
	}
	return exp, nil
}

// PutValue stores v as JSON under a key outside the collection namespace.
func (s *Store) PutValue(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.kv.Save(ctx, key, raw)
}

// GetValue decodes the value at key into out and reports whether it existed.
func (s *Store) GetValue(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := s.kv.Load(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("corrupt %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) RemoveValue(ctx context.Context, key string) error {
	return s.kv.Remove(ctx, key)
}

// DecodeAll unmarshals each raw record into T.
func DecodeAll[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
