// Package storetest holds the behavioural suite every repository.Store
// backend must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/repository"
)

// Factory returns an empty store. Cleanup belongs to the factory.
type Factory func(t *testing.T) repository.Store

// base is millisecond aligned so document databases round-trip it exactly.
var base = time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	t.Run("InsertGetReplace", func(t *testing.T) { testInsertGetReplace(t, newStore(t)) })
	t.Run("DuplicateInsert", func(t *testing.T) { testDuplicateInsert(t, newStore(t)) })
	t.Run("ListByPatientNewestFirst", func(t *testing.T) { testListByPatient(t, newStore(t)) })
	t.Run("DeleteConsultation", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("FindOneByEmail", func(t *testing.T) { testFindOne(t, newStore(t)) })
	t.Run("QueryAnalytics", func(t *testing.T) { testQueryAnalytics(t, newStore(t)) })
	t.Run("BulkUpsertIsIdempotent", func(t *testing.T) { testBulkUpsert(t, newStore(t)) })
	t.Run("BulkUpsertKeepsUnsentFields", func(t *testing.T) { testBulkUpsertMerges(t, newStore(t)) })
	t.Run("CountsAndFeatures", func(t *testing.T) { testCounts(t, newStore(t)) })
}

func consultation(id, patient string, f domain.FeatureType, at time.Time) domain.Consultation {
	return domain.Consultation{
		ConsultationID: id,
		PatientID:      patient,
		FeatureType:    f,
		AIResponse:     "response " + id,
		Status:         domain.StatusCompleted,
		Timestamp:      at,
		CreatedAt:      at,
	}
}

func testInsertGetReplace(t *testing.T, s repository.Store) {
	ctx := context.Background()
	p := domain.Patient{PatientID: "p1", FirstName: "Ann", Email: "ann@example.com", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.Insert(ctx, p))

	got, err := s.Get(ctx, domain.CollectionPatients, "p1")
	require.NoError(t, err)
	gotPatient, ok := got.(domain.Patient)
	require.True(t, ok)
	assert.Equal(t, "Ann", gotPatient.FirstName)
	assert.True(t, base.Equal(gotPatient.CreatedAt))

	gotPatient.LastName = "Lee"
	gotPatient.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, s.Replace(ctx, gotPatient))

	got, err = s.Get(ctx, domain.CollectionPatients, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Lee", got.(domain.Patient).LastName)

	_, err = s.Get(ctx, domain.CollectionPatients, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, s.Replace(ctx, domain.Patient{PatientID: "missing"}), repository.ErrNotFound)
}

func testDuplicateInsert(t *testing.T, s repository.Store) {
	ctx := context.Background()
	c := consultation("c1", "p1", domain.FeatureSymptomAnalysis, base)
	require.NoError(t, s.Insert(ctx, c))
	assert.ErrorIs(t, s.Insert(ctx, c), repository.ErrDuplicate)
}

func testListByPatient(t *testing.T, s repository.Store) {
	ctx := context.Background()
	for i, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		require.NoError(t, s.Insert(ctx, consultation(id, "p1", domain.FeatureSymptomAnalysis, base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, s.Insert(ctx, consultation("other", "p2", domain.FeatureSymptomAnalysis, base.Add(10*time.Hour))))

	recs, err := s.ListByPatient(ctx, domain.CollectionConsultations, "p1", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "c5", recs[0].NaturalID())
	assert.Equal(t, "c4", recs[1].NaturalID())
	assert.Equal(t, "c3", recs[2].NaturalID())
	for i := 1; i < len(recs); i++ {
		assert.True(t, recs[i-1].SortTime().After(recs[i].SortTime()))
	}

	all, err := s.ListByPatient(ctx, domain.CollectionConsultations, "p1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := s.ListByPatient(ctx, domain.CollectionConsultations, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testDelete(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, consultation("c1", "p1", domain.FeatureSymptomAnalysis, base)))
	require.NoError(t, s.Insert(ctx, consultation("c2", "p2", domain.FeatureSymptomAnalysis, base)))

	require.NoError(t, s.Delete(ctx, domain.CollectionConsultations, "c1"))
	assert.ErrorIs(t, s.Delete(ctx, domain.CollectionConsultations, "c1"), repository.ErrNotFound)

	p1, err := s.ListByPatient(ctx, domain.CollectionConsultations, "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, p1)

	p2, err := s.ListByPatient(ctx, domain.CollectionConsultations, "p2", 0)
	require.NoError(t, err)
	assert.Len(t, p2, 1)
}

func testFindOne(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, domain.Patient{PatientID: "p1", Email: "ann@example.com", CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, s.Insert(ctx, domain.Patient{PatientID: "p2", Email: "bob@example.com", CreatedAt: base, UpdatedAt: base}))

	rec, err := s.FindOne(ctx, domain.CollectionPatients, "email", "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "p2", rec.NaturalID())

	_, err = s.FindOne(ctx, domain.CollectionPatients, "email", "eve@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testQueryAnalytics(t *testing.T, s repository.Store) {
	ctx := context.Background()
	events := []domain.AnalyticsEvent{
		{EventID: "e1", PatientID: "p1", EventType: "login", Timestamp: base},
		{EventID: "e2", PatientID: "p1", EventType: "consultation", Timestamp: base.Add(time.Minute)},
		{EventID: "e3", PatientID: "p2", EventType: "login", Timestamp: base.Add(2 * time.Minute)},
		{EventID: "e4", PatientID: "p1", EventType: "login", Timestamp: base.Add(time.Hour)},
	}
	for _, e := range events {
		require.NoError(t, s.Insert(ctx, e))
	}

	got, err := s.QueryAnalytics(ctx, "p1", domain.AnalyticsFilter{Start: base, End: base.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].EventID)
	assert.Equal(t, "e1", got[1].EventID)

	got, err = s.QueryAnalytics(ctx, "", domain.AnalyticsFilter{EventType: "login"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "e4", got[0].EventID)

	got, err = s.QueryAnalytics(ctx, "", domain.AnalyticsFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testBulkUpsert(t *testing.T, s repository.Store) {
	ctx := context.Background()
	recs := []domain.Record{
		consultation("c1", "p1", domain.FeatureSymptomAnalysis, base),
		consultation("c2", "p1", domain.FeatureMedicationInfo, base.Add(time.Minute)),
	}
	n, err := s.BulkUpsert(ctx, domain.CollectionConsultations, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first, err := s.ListByPatient(ctx, domain.CollectionConsultations, "p1", 0)
	require.NoError(t, err)

	_, err = s.BulkUpsert(ctx, domain.CollectionConsultations, recs)
	require.NoError(t, err)

	second, err := s.ListByPatient(ctx, domain.CollectionConsultations, "p1", 0)
	require.NoError(t, err)
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].NaturalID(), second[i].NaturalID())
	}

	changed := consultation("c1", "p1", domain.FeatureSymptomAnalysis, base)
	changed.AIResponse = "updated"
	_, err = s.BulkUpsert(ctx, domain.CollectionConsultations, []domain.Record{changed})
	require.NoError(t, err)

	rec, err := s.Get(ctx, domain.CollectionConsultations, "c1")
	require.NoError(t, err)
	assert.Equal(t, "updated", rec.(domain.Consultation).AIResponse)

	n, err = s.BulkUpsert(ctx, domain.CollectionAnalytics, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testBulkUpsertMerges(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, domain.Patient{
		PatientID: "p1", FirstName: "Ann", Email: "ann@example.com", Phone: "555-0100",
		CreatedAt: base, UpdatedAt: base,
	}))

	sparse := domain.Patient{PatientID: "p1", Phone: "555-0199", UpdatedAt: base.Add(time.Hour)}
	n, err := s.BulkUpsert(ctx, domain.CollectionPatients, []domain.Record{sparse})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := s.Get(ctx, domain.CollectionPatients, "p1")
	require.NoError(t, err)
	p := rec.(domain.Patient)
	assert.Equal(t, "555-0199", p.Phone)
	assert.Equal(t, "Ann", p.FirstName)
	assert.Equal(t, "ann@example.com", p.Email)
	assert.True(t, base.Equal(p.CreatedAt), "createdAt kept")
	assert.True(t, base.Add(time.Hour).Equal(p.UpdatedAt))

	found, err := s.FindOne(ctx, domain.CollectionPatients, "email", "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "p1", found.NaturalID())
}

func testCounts(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Insert(ctx, domain.Patient{PatientID: "p1", CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, s.Insert(ctx, consultation("c1", "p1", domain.FeatureSymptomAnalysis, base)))
	require.NoError(t, s.Insert(ctx, consultation("c2", "p1", domain.FeatureSymptomAnalysis, base)))
	require.NoError(t, s.Insert(ctx, consultation("c3", "p1", domain.FeatureMedicationInfo, base)))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.CollectionPatients])
	assert.Equal(t, 3, counts[domain.CollectionConsultations])
	assert.Equal(t, 0, counts[domain.CollectionImageAnalyses])

	features, err := s.ConsultationsByFeature(ctx)
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, domain.FeatureCount{FeatureType: domain.FeatureSymptomAnalysis, Count: 2}, features[0])
	assert.Equal(t, domain.FeatureCount{FeatureType: domain.FeatureMedicationInfo, Count: 1}, features[1])
}
