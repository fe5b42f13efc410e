package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-telemed/internal/apiclient"
	"github.com/iyunix/go-telemed/internal/blob"
	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/handlers"
	"github.com/iyunix/go-telemed/internal/localstore"
	"github.com/iyunix/go-telemed/internal/repository/memory"
	"github.com/iyunix/go-telemed/internal/services"
)

type fixture struct {
	coord   *Coordinator
	local   *localstore.Store
	backend *memory.Store
	blobs   *blob.Memory
	reg     *prometheus.Registry
}

func testConfig(reg prometheus.Registerer) Config {
	cfg := DefaultConfig()
	cfg.RemoteTimeout = 2 * time.Second
	cfg.ProbeInterval = 0
	cfg.Registerer = reg
	return cfg
}

func backendRouter(store *memory.Store, blobs *blob.Memory) http.Handler {
	cfg := handlers.DefaultConfig()
	cfg.JWTSecret = []byte("coordinator-test")
	return handlers.NewRouter(handlers.New(store, blobs, nil, &services.NoOpLogger{}, cfg), nil, nil)
}

func newFixture(t *testing.T, h http.Handler, cfg Config) *fixture {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return newFixtureAt(t, srv.URL, localstore.New(localstore.NewMemoryKV()), cfg)
}

func newFixtureAt(t *testing.T, url string, local *localstore.Store, cfg Config) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	if cfg.Registerer == nil {
		cfg.Registerer = reg
	}
	client := apiclient.New(apiclient.Config{BaseURL: url + "/api", Timeout: cfg.RemoteTimeout}, nil)
	c := New(client, local, &services.NoOpLogger{}, cfg)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return &fixture{coord: c, local: local, reg: reg}
}

func newOnline(t *testing.T) *fixture {
	t.Helper()
	store, blobs := memory.New(), blob.NewMemory()
	f := newFixture(t, backendRouter(store, blobs), testConfig(nil))
	f.backend, f.blobs = store, blobs
	require.True(t, f.coord.IsConnected())
	return f
}

func newOffline(t *testing.T) *fixture {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	f := newFixtureAt(t, srv.URL, localstore.New(localstore.NewMemoryKV()), testConfig(nil))
	require.False(t, f.coord.IsConnected())
	return f
}

// newFailing answers /health but fails every other call with 500.
func newFailing(t *testing.T) *fixture {
	t.Helper()
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/health" {
			_, _ = w.Write([]byte(`{"success":true,"data":{"status":"OK","database":"connected"}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"boom"}`))
	})
	f := newFixture(t, h, testConfig(nil))
	require.True(t, f.coord.IsConnected())
	return f
}

func modes(t *testing.T) map[string]func(*testing.T) *fixture {
	return map[string]func(*testing.T) *fixture{
		"online":  newOnline,
		"offline": newOffline,
		"failing": newFailing,
	}
}

func TestPatientConsultationScenario(t *testing.T) {
	for name, mk := range modes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := mk(t)

			p, err := f.coord.CreatePatient(ctx, domain.Patient{PatientID: "p1", FirstName: "Ann"})
			require.NoError(t, err)
			assert.Equal(t, "p1", p.PatientID)

			saved, err := f.coord.SaveConsultation(ctx, domain.Consultation{
				PatientID:   "p1",
				FeatureType: domain.FeatureSymptomAnalysis,
				AIResponse:  "Rest and fluids.",
			})
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCompleted, saved.Status)
			assert.Equal(t, f.coord.SessionID(), saved.SessionID)

			history, err := f.coord.GetConsultationHistory(ctx, "p1", 10)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, saved.ConsultationID, history[0].ConsultationID)
			assert.Equal(t, "Rest and fluids.", history[0].AIResponse)

			got, err := f.coord.GetPatient(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, "Ann", got.FirstName)
		})
	}
}

func TestAnalyticsScenario(t *testing.T) {
	for name, mk := range modes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := mk(t)
			start := time.Now().UTC().Add(-time.Minute)

			first, err := f.coord.SaveAnalytics(ctx, domain.AnalyticsEvent{PatientID: "p1", EventType: "page_view"})
			require.NoError(t, err)
			time.Sleep(5 * time.Millisecond)
			second, err := f.coord.SaveAnalytics(ctx, domain.AnalyticsEvent{PatientID: "p1", EventType: "feature_used"})
			require.NoError(t, err)

			events, err := f.coord.GetAnalytics(ctx, "p1", domain.AnalyticsFilter{Start: start, End: time.Now().UTC().Add(time.Minute)})
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, second.EventID, events[0].EventID)
			assert.Equal(t, first.EventID, events[1].EventID)
		})
	}
}

func TestFailingBackendFallsBackForEveryOperation(t *testing.T) {
	ctx := context.Background()
	f := newFailing(t)

	_, err := f.coord.CreatePatient(ctx, domain.Patient{PatientID: "p1", Email: "ann@example.com", Password: "password-1"})
	require.NoError(t, err)
	updated, err := f.coord.UpdatePatient(ctx, "p1", domain.PatientUpdate{"height": 160.0, "weight": 64.0})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, updated.BMI, 0.05)
	assert.Empty(t, updated.Password)

	_, err = f.coord.SaveMedicalRecord(ctx, domain.MedicalRecord{PatientID: "p1", Title: "CBC"})
	require.NoError(t, err)
	recs, err := f.coord.GetMedicalRecords(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	login, err := f.coord.AuthenticateUser(ctx, "ann@example.com", "password-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", login.User.PatientID)

	stats, err := f.coord.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalPatients)
	assert.Equal(t, 1, stats.TotalMedicalRecords)

	assert.True(t, f.coord.IsConnected(), "status errors keep the connection mode")
	assert.Equal(t, float64(1), testutil.ToFloat64(f.coord.fallbacks.WithLabelValues("CreatePatient")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.coord.fallbacks.WithLabelValues("AuthenticateUser")))
}

func TestImageBinaryOnlyReachesBackend(t *testing.T) {
	ctx := context.Background()
	data := []byte("\x89PNG\r\n\x1a\nimage-bytes")

	online := newOnline(t)
	img, err := online.coord.SaveImageAnalysis(ctx, domain.ImageAnalysis{PatientID: "p1", FileName: "a.png", ImageData: data})
	require.NoError(t, err)
	_, stored, err := online.blobs.Get(ctx, domain.BlobKeyFor("p1", img.ImageID))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	offline := newOffline(t)
	img, err = offline.coord.SaveImageAnalysis(ctx, domain.ImageAnalysis{PatientID: "p1", FileName: "a.png", ImageData: data})
	require.NoError(t, err)
	assert.Nil(t, img.ImageData)
	assert.Equal(t, int64(len(data)), img.FileSize)

	var local domain.ImageAnalysis
	require.NoError(t, offline.local.Get(ctx, domain.CollectionImageAnalyses, img.ImageID, &local))
	assert.Nil(t, local.ImageData)

	list, err := offline.coord.GetImageAnalyses(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].ImageData)
}

func TestHistoryLimitSameInEveryMode(t *testing.T) {
	for name, mk := range modes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := mk(t)
			for i := 0; i < 150; i++ {
				_, err := f.coord.SaveConsultation(ctx, domain.Consultation{PatientID: "p1", FeatureType: domain.FeatureMedicationInfo})
				require.NoError(t, err)
			}

			list, err := f.coord.GetConsultationHistory(ctx, "p1", 120)
			require.NoError(t, err)
			assert.Len(t, list, 120)
		})
	}
}

func TestValidationErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	f := newOffline(t)

	_, err := f.coord.CreatePatient(ctx, domain.Patient{PatientID: "p1", Email: "not-an-email"})
	assert.True(t, domain.IsValidation(err))

	_, err = f.coord.SaveConsultation(ctx, domain.Consultation{PatientID: "p1"})
	assert.True(t, domain.IsValidation(err), "featureType is required")

	_, err = f.coord.SaveConsultation(ctx, domain.Consultation{PatientID: "p1", FeatureType: "bogus"})
	assert.True(t, domain.IsValidation(err), "featureType must be known")
	recs, err := f.local.All(ctx, domain.CollectionConsultations)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = f.coord.GetPatient(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDefaultPatientReference(t *testing.T) {
	ctx := context.Background()
	f := newOffline(t)

	rec, err := f.coord.SaveMedicalRecord(ctx, domain.MedicalRecord{Title: "note"})
	require.NoError(t, err)
	assert.Equal(t, AnonymousPatient, rec.PatientID)

	_, err = f.coord.CreatePatient(ctx, domain.Patient{PatientID: "p9", Email: "p9@example.com", Password: "password-9"})
	require.NoError(t, err)
	_, err = f.coord.AuthenticateUser(ctx, "p9@example.com", "password-9")
	require.NoError(t, err)

	e, err := f.coord.SaveAnalytics(ctx, domain.AnalyticsEvent{EventType: "login"})
	require.NoError(t, err)
	assert.Equal(t, "p9", e.PatientID)
	assert.Equal(t, f.coord.SessionID(), e.SessionID)
}

func TestLocalAuthentication(t *testing.T) {
	ctx := context.Background()
	f := newOffline(t)
	_, err := f.coord.CreatePatient(ctx, domain.Patient{PatientID: "p1", Email: "ann@example.com", Password: "password-1"})
	require.NoError(t, err)

	_, err = f.coord.AuthenticateUser(ctx, "ann@example.com", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.coord.AuthenticateUser(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	result, err := f.coord.AuthenticateUser(ctx, "ann@example.com", "password-1")
	require.NoError(t, err)
	assert.Empty(t, result.Token)
	assert.Empty(t, result.User.Password)

	// A new coordinator over the same local store restores the session.
	again := newFixtureAt(t, "http://127.0.0.1:1", f.local, testConfig(nil))
	user, ok := again.coord.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "p1", user.PatientID)
	assert.NotEqual(t, f.coord.SessionID(), again.coord.SessionID())

	require.NoError(t, again.coord.Logout(ctx))
	_, ok = again.coord.CurrentUser()
	assert.False(t, ok)
	var stored domain.Patient
	found, err := f.local.GetValue(ctx, localstore.KeyCurrentUser, &stored)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteAndClearConsultations(t *testing.T) {
	ctx := context.Background()
	f := newOffline(t)
	for _, pid := range []string{"p1", "p1", "p2"} {
		_, err := f.coord.SaveConsultation(ctx, domain.Consultation{PatientID: pid, FeatureType: domain.FeatureMedicationInfo})
		require.NoError(t, err)
	}
	p1, err := f.coord.GetConsultationHistory(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, p1, 2)

	require.NoError(t, f.coord.DeleteConsultation(ctx, p1[0].ConsultationID))
	assert.ErrorIs(t, f.coord.DeleteConsultation(ctx, p1[0].ConsultationID), domain.ErrNotFound)

	p2, err := f.coord.GetConsultationHistory(ctx, "p2", 0)
	require.NoError(t, err)
	assert.Len(t, p2, 1, "other patients are untouched")

	n, err := f.coord.ClearConsultationHistory(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.coord.ClearConsultationHistory(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncWithCloudOffline(t *testing.T) {
	f := newOffline(t)
	_, err := f.coord.SyncWithCloud(context.Background())
	assert.ErrorIs(t, err, domain.ErrOffline)
}

func TestNetworkFailureSwitchesToOffline(t *testing.T) {
	ctx := context.Background()
	store, blobs := memory.New(), blob.NewMemory()
	srv := httptest.NewServer(backendRouter(store, blobs))
	f := newFixtureAt(t, srv.URL, localstore.New(localstore.NewMemoryKV()), testConfig(nil))
	require.True(t, f.coord.IsConnected())

	srv.Close()
	_, err := f.coord.SaveConsultation(ctx, domain.Consultation{PatientID: "p1", FeatureType: domain.FeatureReportAnalysis})
	require.NoError(t, err)
	assert.False(t, f.coord.IsConnected())
}

func TestReconnectTriggersAutoSync(t *testing.T) {
	ctx := context.Background()
	var up atomic.Bool
	store, blobs := memory.New(), blob.NewMemory()
	router := backendRouter(store, blobs)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(nil)
	cfg.ProbeInterval = 20 * time.Millisecond
	f := newFixtureAt(t, srv.URL, localstore.New(localstore.NewMemoryKV()), cfg)
	require.False(t, f.coord.IsConnected())

	_, err := f.coord.CreatePatient(ctx, domain.Patient{PatientID: "p1", FirstName: "Ann"})
	require.NoError(t, err)
	_, err = f.coord.SaveConsultation(ctx, domain.Consultation{PatientID: "p1", FeatureType: domain.FeatureSymptomAnalysis})
	require.NoError(t, err)

	up.Store(true)
	require.Eventually(t, func() bool {
		counts, err := store.Counts(ctx)
		return err == nil && counts[domain.CollectionPatients] == 1 && counts[domain.CollectionConsultations] == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.coord.IsConnected())
}

func TestTimeoutDuringAutoSyncStillReconnects(t *testing.T) {
	ctx := context.Background()
	var up atomic.Bool
	release := make(chan struct{})
	syncEntered := make(chan struct{})
	var enterOnce sync.Once
	store, blobs := memory.New(), blob.NewMemory()
	router := backendRouter(store, blobs)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		hold := r.URL.Path == "/api/sync" || (r.Method == http.MethodPost && r.URL.Path == "/api/patients")
		if hold {
			if r.URL.Path == "/api/sync" {
				enterOnce.Do(func() { close(syncEntered) })
			}
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(nil)
	cfg.RemoteTimeout = 100 * time.Millisecond
	cfg.ProbeInterval = 20 * time.Millisecond
	local := localstore.New(localstore.NewMemoryKV())
	client := apiclient.New(apiclient.Config{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second}, nil)
	c := New(client, local, &services.NoOpLogger{}, cfg)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(c.Close)
	require.False(t, c.IsConnected())

	_, err := c.SaveMedicalRecord(ctx, domain.MedicalRecord{PatientID: "p1", Title: "X-ray"})
	require.NoError(t, err)

	up.Store(true)
	select {
	case <-syncEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("auto-sync never started")
	}

	// The backend is healthy but slow; this call times out while auto-sync is in flight.
	_, err = c.CreatePatient(ctx, domain.Patient{PatientID: "p1", FirstName: "Ann"})
	require.NoError(t, err)
	close(release)

	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, domain.CollectionPatients, "p1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "locally saved patient reaches the backend on the next sync")
}

func TestSyncWithCloudIsIdempotent(t *testing.T) {
	ctx := context.Background()
	var up atomic.Bool
	store, blobs := memory.New(), blob.NewMemory()
	router := backendRouter(store, blobs)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	f := newFixtureAt(t, srv.URL, localstore.New(localstore.NewMemoryKV()), testConfig(nil))
	_, err := f.coord.SaveMedicalRecord(ctx, domain.MedicalRecord{PatientID: "p1", Title: "X-ray"})
	require.NoError(t, err)

	up.Store(true)
	require.True(t, f.coord.Probe(ctx))
	for i := 0; i < 2; i++ {
		report, err := f.coord.SyncWithCloud(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Results[domain.CollectionMedicalRecords].Upserted)
	}
	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.CollectionMedicalRecords])
}

func TestExportAll(t *testing.T) {
	ctx := context.Background()
	f := newOffline(t)
	_, err := f.coord.CreatePatient(ctx, domain.Patient{PatientID: "p1"})
	require.NoError(t, err)

	export, err := f.coord.ExportAll(ctx)
	require.NoError(t, err)
	assert.Len(t, export.Collections[domain.CollectionPatients], 1)
	assert.False(t, export.ExportDate.IsZero())
	for _, c := range domain.AllCollections {
		assert.Contains(t, export.Collections, c)
	}
}
