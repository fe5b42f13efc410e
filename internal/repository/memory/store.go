// Package memory is the in-process backend store, keyed by natural identifier.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/repository"
)

type Store struct {
	mu   sync.RWMutex
	data map[domain.Collection]map[string]domain.Record
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	data := make(map[domain.Collection]map[string]domain.Record, len(domain.AllCollections))
	for _, c := range domain.AllCollections {
		data[c] = map[string]domain.Record{}
	}
	return &Store{data: data}
}

func (s *Store) Ping(context.Context) error  { return nil }
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Insert(_ context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.data[rec.Collection()]
	if _, ok := col[rec.NaturalID()]; ok {
		return repository.ErrDuplicate
	}
	col[rec.NaturalID()] = rec
	return nil
}

func (s *Store) Get(_ context.Context, c domain.Collection, id string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[c][id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Replace(_ context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.data[rec.Collection()]
	if _, ok := col[rec.NaturalID()]; !ok {
		return repository.ErrNotFound
	}
	col[rec.NaturalID()] = rec
	return nil
}

func (s *Store) Delete(_ context.Context, c domain.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[c][id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.data[c], id)
	return nil
}

func (s *Store) FindOne(_ context.Context, c domain.Collection, field, value string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.sorted(c) {
		if fieldValue(rec, field) == value {
			return rec, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListByPatient(_ context.Context, c domain.Collection, patientID string, limit int) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Record{}
	for _, rec := range s.sorted(c) {
		if rec.PatientRef() != patientID {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) QueryAnalytics(_ context.Context, patientID string, f domain.AnalyticsFilter) ([]domain.AnalyticsEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.AnalyticsEvent{}
	for _, rec := range s.sorted(domain.CollectionAnalytics) {
		e := rec.(domain.AnalyticsEvent)
		if patientID != "" && e.PatientID != patientID {
			continue
		}
		if !f.Matches(e) {
			continue
		}
		out = append(out, e)
		if len(out) == f.EffectiveLimit() {
			break
		}
	}
	return out, nil
}

func (s *Store) BulkUpsert(_ context.Context, c domain.Collection, recs []domain.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		merged, err := domain.MergeRecord(s.data[c][rec.NaturalID()], rec)
		if err != nil {
			return 0, err
		}
		s.data[c][rec.NaturalID()] = merged
	}
	return len(recs), nil
}

func (s *Store) Counts(context.Context) (map[domain.Collection]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Collection]int, len(s.data))
	for c, col := range s.data {
		out[c] = len(col)
	}
	return out, nil
}

func (s *Store) ConsultationsByFeature(context.Context) ([]domain.FeatureCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	consultations := make([]domain.Consultation, 0, len(s.data[domain.CollectionConsultations]))
	for _, rec := range s.data[domain.CollectionConsultations] {
		consultations = append(consultations, rec.(domain.Consultation))
	}
	return domain.CountFeatures(consultations), nil
}

// sorted must be called with s.mu held.
func (s *Store) sorted(c domain.Collection) []domain.Record {
	out := make([]domain.Record, 0, len(s.data[c]))
	for _, rec := range s.data[c] {
		out = append(out, rec)
	}
	domain.SortNewestFirst(out)
	return out
}

func fieldValue(rec domain.Record, field string) string {
	raw, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	v, _ := fields[field].(string)
	return v
}
