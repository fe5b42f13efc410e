// File: internal/repository/mongostore/store.go
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/repository"
)

// Logger is the subset of services.Logger this package needs.
type Logger interface {
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Store keeps one Mongo collection per domain collection, each with a
// unique index on its natural key.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    Logger
}

var _ repository.Store = (*Store)(nil)

// Open connects to uri, selects database and ensures indexes.
func Open(ctx context.Context, uri, database string, log Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	s := &Store{client: client, db: client.Database(database), log: log}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	for _, c := range domain.AllCollections {
		models := []mongo.IndexModel{
			{Keys: bson.D{{Key: c.NaturalKey(), Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: c.SortKey(), Value: -1}}},
		}
		if c == domain.CollectionPatients {
			models = models[:1]
		}
		if _, err := s.coll(c).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", c, err)
		}
	}
	return nil
}

func (s *Store) coll(c domain.Collection) *mongo.Collection {
	return s.db.Collection(c.String())
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Insert(ctx context.Context, rec domain.Record) error {
	_, err := s.coll(rec.Collection()).InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicate
	}
	if err != nil {
		s.log.Error("[MongoStore] Insert failed", "collection", rec.Collection(), "id", rec.NaturalID(), "error", err)
		return errors.New("database error inserting record")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, c domain.Collection, id string) (domain.Record, error) {
	res := s.coll(c).FindOne(ctx, bson.M{c.NaturalKey(): id})
	return s.decodeOne(c, res, "Get", id)
}

func (s *Store) Replace(ctx context.Context, rec domain.Record) error {
	c := rec.Collection()
	res, err := s.coll(c).ReplaceOne(ctx, bson.M{c.NaturalKey(): rec.NaturalID()}, rec)
	if err != nil {
		s.log.Error("[MongoStore] Replace failed", "collection", c, "id", rec.NaturalID(), "error", err)
		return errors.New("database error updating record")
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, c domain.Collection, id string) error {
	res, err := s.coll(c).DeleteOne(ctx, bson.M{c.NaturalKey(): id})
	if err != nil {
		s.log.Error("[MongoStore] Delete failed", "collection", c, "id", id, "error", err)
		return errors.New("database error deleting record")
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, c domain.Collection, field, value string) (domain.Record, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: c.SortKey(), Value: -1}})
	res := s.coll(c).FindOne(ctx, bson.M{field: value}, opts)
	return s.decodeOne(c, res, "FindOne", field)
}

func (s *Store) ListByPatient(ctx context.Context, c domain.Collection, patientID string, limit int) ([]domain.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: c.SortKey(), Value: -1}, {Key: c.NaturalKey(), Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll(c).Find(ctx, bson.M{"patientId": patientID}, opts)
	if err != nil {
		s.log.Error("[MongoStore] ListByPatient failed", "collection", c, "patientId", patientID, "error", err)
		return nil, errors.New("database error listing records")
	}
	return decodeAll(ctx, c, cur)
}

func (s *Store) QueryAnalytics(ctx context.Context, patientID string, f domain.AnalyticsFilter) ([]domain.AnalyticsEvent, error) {
	filter := bson.M{}
	if patientID != "" {
		filter["patientId"] = patientID
	}
	if f.EventType != "" {
		filter["eventType"] = f.EventType
	}
	window := bson.M{}
	if !f.Start.IsZero() {
		window["$gte"] = f.Start
	}
	if !f.End.IsZero() {
		window["$lte"] = f.End
	}
	if len(window) > 0 {
		filter["timestamp"] = window
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "eventId", Value: -1}}).
		SetLimit(int64(f.EffectiveLimit()))
	cur, err := s.coll(domain.CollectionAnalytics).Find(ctx, filter, opts)
	if err != nil {
		s.log.Error("[MongoStore] QueryAnalytics failed", "patientId", patientID, "error", err)
		return nil, errors.New("database error querying analytics")
	}
	var out []domain.AnalyticsEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode analytics: %w", err)
	}
	if out == nil {
		out = []domain.AnalyticsEvent{}
	}
	return out, nil
}

// BulkUpsert issues one unordered bulk write of $set upserts filtered on the
// natural key. Stored fields the incoming record leaves empty are kept.
func (s *Store) BulkUpsert(ctx context.Context, c domain.Collection, recs []domain.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, 0, len(recs))
	for _, rec := range recs {
		fields, err := setFields(rec)
		if err != nil {
			return 0, err
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{c.NaturalKey(): rec.NaturalID()}).
			SetUpdate(bson.M{"$set": fields}).
			SetUpsert(true))
	}
	res, err := s.coll(c).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		s.log.Error("[MongoStore] BulkUpsert failed", "collection", c, "count", len(models), "error", err)
		return 0, fmt.Errorf("database error upserting %s", c)
	}
	s.log.Debug("[MongoStore] BulkUpsert", "collection", c, "matched", res.MatchedCount, "upserted", res.UpsertedCount)
	return len(models), nil
}

// setFields is rec as a BSON document without its zero-valued fields.
func setFields(rec domain.Record) (bson.M, error) {
	raw, err := bson.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Collection(), err)
	}
	fields := bson.M{}
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Collection(), err)
	}
	for k, v := range fields {
		if zeroValue(v) {
			delete(fields, k)
		}
	}
	return fields, nil
}

func zeroValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int32:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	case bson.DateTime:
		return x.Time().IsZero()
	case bson.A:
		return len(x) == 0
	case bson.D:
		return len(x) == 0
	}
	return false
}

func (s *Store) Counts(ctx context.Context) (map[domain.Collection]int, error) {
	out := make(map[domain.Collection]int, len(domain.AllCollections))
	for _, c := range domain.AllCollections {
		n, err := s.coll(c).CountDocuments(ctx, bson.M{})
		if err != nil {
			s.log.Error("[MongoStore] Counts failed", "collection", c, "error", err)
			return nil, errors.New("database error counting records")
		}
		out[c] = int(n)
	}
	return out, nil
}

func (s *Store) ConsultationsByFeature(ctx context.Context) ([]domain.FeatureCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$featureType"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}
	cur, err := s.coll(domain.CollectionConsultations).Aggregate(ctx, pipeline)
	if err != nil {
		s.log.Error("[MongoStore] ConsultationsByFeature failed", "error", err)
		return nil, errors.New("database error aggregating consultations")
	}
	var out []domain.FeatureCount
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode feature counts: %w", err)
	}
	if out == nil {
		out = []domain.FeatureCount{}
	}
	domain.SortFeatureCounts(out)
	return out, nil
}

func (s *Store) decodeOne(c domain.Collection, res *mongo.SingleResult, op, key string) (domain.Record, error) {
	rec, err := decodeInto(c, res.Decode)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		s.log.Error("[MongoStore] "+op+" failed", "collection", c, "key", key, "error", err)
		return nil, errors.New("database error finding record")
	}
	return rec, nil
}

func decodeAll(ctx context.Context, c domain.Collection, cur *mongo.Cursor) ([]domain.Record, error) {
	defer cur.Close(ctx)
	out := []domain.Record{}
	for cur.Next(ctx) {
		rec, err := decodeInto(c, cur.Decode)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, cur.Err()
}

// decodeInto runs decode against the typed value for c.
func decodeInto(c domain.Collection, decode func(any) error) (domain.Record, error) {
	switch c {
	case domain.CollectionPatients:
		var v domain.Patient
		err := decode(&v)
		return v, err
	case domain.CollectionConsultations:
		var v domain.Consultation
		err := decode(&v)
		return v, err
	case domain.CollectionMedicalRecords:
		var v domain.MedicalRecord
		err := decode(&v)
		return v, err
	case domain.CollectionImageAnalyses:
		var v domain.ImageAnalysis
		err := decode(&v)
		return v, err
	case domain.CollectionAnalytics:
		var v domain.AnalyticsEvent
		err := decode(&v)
		return v, err
	}
	return nil, fmt.Errorf("unknown collection %q", c)
}
