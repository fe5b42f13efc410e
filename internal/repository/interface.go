// File: internal/repository/interface.go
package repository

import (
	"context"
	"errors"

	"github.com/iyunix/go-telemed/internal/domain"
)

var (
	// ErrNotFound is returned when no document matches the identifier.
	ErrNotFound = domain.ErrNotFound
	// ErrDuplicate is returned by Insert when the natural id is already taken.
	ErrDuplicate = errors.New("record already exists")
)

// Store is the backend document storage contract. Every backend keeps one
// logical collection per domain.Collection, keyed by the natural identifier.
type Store interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	// Insert adds a new record, failing with ErrDuplicate if the id exists.
	Insert(ctx context.Context, rec domain.Record) error
	Get(ctx context.Context, c domain.Collection, id string) (domain.Record, error)
	// Replace overwrites an existing record, failing with ErrNotFound if absent.
	Replace(ctx context.Context, rec domain.Record) error
	Delete(ctx context.Context, c domain.Collection, id string) error

	// FindOne returns the first record whose top-level field equals value.
	FindOne(ctx context.Context, c domain.Collection, field, value string) (domain.Record, error)
	// ListByPatient returns records for patientID newest first. limit <= 0 means no limit.
	ListByPatient(ctx context.Context, c domain.Collection, patientID string, limit int) ([]domain.Record, error)
	// QueryAnalytics filters analytics events newest first. An empty patientID matches all.
	QueryAnalytics(ctx context.Context, patientID string, f domain.AnalyticsFilter) ([]domain.AnalyticsEvent, error)

	// BulkUpsert writes every record keyed by its natural id and reports how many were written.
	BulkUpsert(ctx context.Context, c domain.Collection, recs []domain.Record) (int, error)

	Counts(ctx context.Context) (map[domain.Collection]int, error)
	ConsultationsByFeature(ctx context.Context) ([]domain.FeatureCount, error)
}
