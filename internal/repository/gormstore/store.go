// File: internal/repository/gormstore/store.go
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/repository"
)

// Logger is the subset of services.Logger this package needs.
type Logger interface {
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// document is one record of any collection. The typed record lives in Body;
// the other columns are copies used for lookups and ordering.
type document struct {
	Collection string         `gorm:"primaryKey;size:64"`
	DocID      string         `gorm:"primaryKey;size:191"`
	PatientID  string         `gorm:"index;size:191"`
	SortAt     time.Time      `gorm:"index"`
	Body       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (document) TableName() string { return "documents" }

type Store struct {
	db  *gorm.DB
	log Logger
}

var _ repository.Store = (*Store)(nil)

// Open connects with the named driver ("sqlite" or "postgres") and migrates.
func Open(driver, dsn string, log Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	return New(db, log)
}

func New(db *gorm.DB, log Logger) (*Store, error) {
	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toDocument(rec domain.Record) (document, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return document{}, err
	}
	return document{
		Collection: rec.Collection().String(),
		DocID:      rec.NaturalID(),
		PatientID:  rec.PatientRef(),
		SortAt:     rec.SortTime().UTC(),
		Body:       datatypes.JSON(body),
	}, nil
}

func fromDocument(d document) (domain.Record, error) {
	return domain.DecodeRecord(domain.Collection(d.Collection), d.Body)
}

func (s *Store) Insert(ctx context.Context, rec domain.Record) error {
	doc, err := toDocument(rec)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&document{}).
			Where("collection = ? AND doc_id = ?", doc.Collection, doc.DocID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return repository.ErrDuplicate
		}
		return tx.Create(&doc).Error
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	if err != nil {
		s.log.Error("[DocumentStore] Insert failed", "collection", doc.Collection, "id", doc.DocID, "error", err)
		return errors.New("database error inserting record")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, c domain.Collection, id string) (domain.Record, error) {
	var doc document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", c.String(), id).
		First(&doc).Error
	if err != nil {
		return nil, s.handleFindError(err, "Get", c, id)
	}
	return fromDocument(doc)
}

func (s *Store) Replace(ctx context.Context, rec domain.Record) error {
	doc, err := toDocument(rec)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&document{}).
		Where("collection = ? AND doc_id = ?", doc.Collection, doc.DocID).
		Updates(map[string]interface{}{
			"patient_id": doc.PatientID,
			"sort_at":    doc.SortAt,
			"body":       doc.Body,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		s.log.Error("[DocumentStore] Replace failed", "collection", doc.Collection, "id", doc.DocID, "error", result.Error)
		return errors.New("database error updating record")
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, c domain.Collection, id string) error {
	result := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", c.String(), id).
		Delete(&document{})
	if result.Error != nil {
		s.log.Error("[DocumentStore] Delete failed", "collection", c, "id", id, "error", result.Error)
		return errors.New("database error deleting record")
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, c domain.Collection, field, value string) (domain.Record, error) {
	var doc document
	err := s.db.WithContext(ctx).
		Where("collection = ?", c.String()).
		Where(datatypes.JSONQuery("body").Equals(value, field)).
		Order("sort_at DESC").
		First(&doc).Error
	if err != nil {
		return nil, s.handleFindError(err, "FindOne", c, field)
	}
	return fromDocument(doc)
}

func (s *Store) ListByPatient(ctx context.Context, c domain.Collection, patientID string, limit int) ([]domain.Record, error) {
	q := s.db.WithContext(ctx).
		Where("collection = ? AND patient_id = ?", c.String(), patientID).
		Order("sort_at DESC").Order("doc_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var docs []document
	if err := q.Find(&docs).Error; err != nil {
		s.log.Error("[DocumentStore] ListByPatient failed", "collection", c, "patientId", patientID, "error", err)
		return nil, errors.New("database error listing records")
	}
	out := make([]domain.Record, 0, len(docs))
	for _, d := range docs {
		rec, err := fromDocument(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) QueryAnalytics(ctx context.Context, patientID string, f domain.AnalyticsFilter) ([]domain.AnalyticsEvent, error) {
	q := s.db.WithContext(ctx).Where("collection = ?", domain.CollectionAnalytics.String())
	if patientID != "" {
		q = q.Where("patient_id = ?", patientID)
	}
	if f.EventType != "" {
		q = q.Where(datatypes.JSONQuery("body").Equals(f.EventType, "eventType"))
	}
	if !f.Start.IsZero() {
		q = q.Where("sort_at >= ?", f.Start.UTC())
	}
	if !f.End.IsZero() {
		q = q.Where("sort_at <= ?", f.End.UTC())
	}
	var docs []document
	err := q.Order("sort_at DESC").Order("doc_id DESC").Limit(f.EffectiveLimit()).Find(&docs).Error
	if err != nil {
		s.log.Error("[DocumentStore] QueryAnalytics failed", "patientId", patientID, "error", err)
		return nil, errors.New("database error querying analytics")
	}
	out := make([]domain.AnalyticsEvent, 0, len(docs))
	for _, d := range docs {
		rec, err := fromDocument(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.(domain.AnalyticsEvent))
	}
	return out, nil
}

func (s *Store) BulkUpsert(ctx context.Context, c domain.Collection, recs []domain.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.NaturalID())
	}
	var docs []document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored []document
		if err := tx.Where("collection = ? AND doc_id IN ?", c.String(), ids).Find(&stored).Error; err != nil {
			return err
		}
		existing := make(map[string]domain.Record, len(stored))
		for _, d := range stored {
			rec, err := fromDocument(d)
			if err != nil {
				return err
			}
			existing[d.DocID] = rec
		}

		docs = make([]document, 0, len(recs))
		for _, rec := range recs {
			merged, err := domain.MergeRecord(existing[rec.NaturalID()], rec)
			if err != nil {
				return err
			}
			doc, err := toDocument(merged)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"patient_id", "sort_at", "body", "updated_at"}),
		}).CreateInBatches(&docs, 100).Error
	})
	if err != nil {
		s.log.Error("[DocumentStore] BulkUpsert failed", "collection", c, "count", len(docs), "error", err)
		return 0, fmt.Errorf("database error upserting %s", c)
	}
	s.log.Debug("[DocumentStore] BulkUpsert", "collection", c, "count", len(docs))
	return len(docs), nil
}

func (s *Store) Counts(ctx context.Context) (map[domain.Collection]int, error) {
	var rows []struct {
		Collection string
		N          int
	}
	err := s.db.WithContext(ctx).Model(&document{}).
		Select("collection, COUNT(*) AS n").
		Group("collection").
		Scan(&rows).Error
	if err != nil {
		s.log.Error("[DocumentStore] Counts failed", "error", err)
		return nil, errors.New("database error counting records")
	}
	out := make(map[domain.Collection]int, len(domain.AllCollections))
	for _, c := range domain.AllCollections {
		out[c] = 0
	}
	for _, r := range rows {
		out[domain.Collection(r.Collection)] = r.N
	}
	return out, nil
}

func (s *Store) ConsultationsByFeature(ctx context.Context) ([]domain.FeatureCount, error) {
	var docs []document
	err := s.db.WithContext(ctx).
		Where("collection = ?", domain.CollectionConsultations.String()).
		Find(&docs).Error
	if err != nil {
		s.log.Error("[DocumentStore] ConsultationsByFeature failed", "error", err)
		return nil, errors.New("database error aggregating consultations")
	}
	consultations := make([]domain.Consultation, 0, len(docs))
	for _, d := range docs {
		rec, err := fromDocument(d)
		if err != nil {
			return nil, err
		}
		consultations = append(consultations, rec.(domain.Consultation))
	}
	return domain.CountFeatures(consultations), nil
}

func (s *Store) handleFindError(err error, op string, c domain.Collection, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	s.log.Error("[DocumentStore] "+op+" failed", "collection", c, "key", key, "error", err)
	return errors.New("database error finding record")
}
