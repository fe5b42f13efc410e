package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-telemed/internal/blob"
	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/handlers"
	"github.com/iyunix/go-telemed/internal/repository/memory"
	"github.com/iyunix/go-telemed/internal/services"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("ENV", "test")
	t.Setenv("TELEMED_PROBE_INTERVAL", "0s")
	t.Setenv("TELEMED_REMOTE_TIMEOUT", "2s")
	return filepath.Join(t.TempDir(), "local.db")
}

func newBackend(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	cfg := handlers.DefaultConfig()
	cfg.JWTSecret = []byte("cli-test")
	srv := httptest.NewServer(handlers.NewRouter(handlers.New(store, blob.NewMemory(), nil, &services.NoOpLogger{}, cfg), nil, nil))
	t.Cleanup(srv.Close)
	return srv, store
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := execute(t.Context(), &out, &errOut, args)
	return out.String(), errOut.String(), err
}

func TestPatientLoginAndStatusOnline(t *testing.T) {
	db := setupEnv(t)
	srv, store := newBackend(t)
	base := []string{"--api-url", srv.URL + "/api", "--local-db", db}

	out, _, err := run(t, append(base, "patient", "create", "--id", "p1", "--first-name", "Ann",
		"--email", "ann@example.com", "--password", "s3cret", "--height", "170", "--weight", "65")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"patientId": "p1"`)
	assert.NotContains(t, out, "s3cret")

	_, err = store.Get(t.Context(), domain.CollectionPatients, "p1")
	require.NoError(t, err, "created on the backend")

	out, _, err = run(t, append(base, "login", "--email", "ann@example.com", "--password", "s3cret")...)
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as Ann")

	out, _, err = run(t, append(base, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "mode:     online")
	assert.Contains(t, out, "p1 (ann@example.com)")

	out, _, err = run(t, append(base, "patient", "update", "p1", "--set", "phone=555-0100", "--set", "weight=70")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"phone": "555-0100"`)
	assert.Contains(t, out, `"weight": 70`)

	out, _, err = run(t, append(base, "logout")...)
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")
}

func TestOfflineRecordsThenSync(t *testing.T) {
	db := setupEnv(t)
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	offline := []string{"--api-url", dead.URL + "/api", "--local-db", db}

	_, _, err := run(t, append(offline, "records", "add", "--patient", "p9", "--type", "lab-result",
		"--title", "CBC", "--payload", `{"hb":13.5}`)...)
	require.NoError(t, err)

	out, _, err := run(t, append(offline, "records", "list", "--patient", "p9")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "CBC"`)

	_, _, err = run(t, append(offline, "sync")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")

	srv, store := newBackend(t)
	out, _, err = run(t, "--api-url", srv.URL+"/api", "--local-db", db, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "medicalRecords")

	recs, err := store.ListByPatient(t.Context(), domain.CollectionMedicalRecords, "p9", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestFailingBackendReportsLocalFallback(t *testing.T) {
	db := setupEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/health" {
			_, _ = w.Write([]byte(`{"success":true,"data":{"status":"OK","database":"connected"}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"boom"}`))
	}))
	defer srv.Close()

	out, errOut, err := run(t, "--api-url", srv.URL+"/api", "--local-db", db, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "patients:        0")
	assert.Contains(t, errOut, "served from local storage: GetDashboardStats")
}

func TestConsultAskAndExportHistory(t *testing.T) {
	db := setupEnv(t)
	srv, _ := newBackend(t)

	ai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Rest and \"}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"**hydrate**.\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer ai.Close()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", ai.URL)
	t.Setenv("OPENAI_MODEL", "m")

	base := []string{"--api-url", srv.URL + "/api", "--local-db", db}
	out, errOut, err := run(t, append(base, "consult", "ask", "--patient", "p1", "I", "have", "a", "cold")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Rest and **hydrate**.")
	assert.Contains(t, errOut, "saved consultation")

	out, _, err = run(t, append(base, "consult", "history", "--patient", "p1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Symptom Analysis")
	assert.Contains(t, out, "1 consultations")

	path := filepath.Join(t.TempDir(), "history.html")
	_, _, err = run(t, append(base, "export", "history", "--patient", "p1", "--format", "html", "-o", path)...)
	require.NoError(t, err)
	page, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<strong>hydrate</strong>")
	assert.Contains(t, string(page), "I have a cold")
}

func TestConsultAskRequiresAPIKey(t *testing.T) {
	db := setupEnv(t)
	t.Setenv("OPENAI_API_KEY", "")
	_, _, err := run(t, "--local-db", db, "--timeout", "100ms", "consult", "ask", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestConcurrentInvocationsKeepTheirOwnStores(t *testing.T) {
	setupEnv(t)
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	ai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Drink water.\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer ai.Close()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", ai.URL)
	t.Setenv("OPENAI_MODEL", "m")

	dbA := filepath.Join(t.TempDir(), "a.db")
	type result struct {
		errOut string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		var out, errOut bytes.Buffer
		err := execute(context.Background(), &out, &errOut,
			[]string{"--api-url", dead.URL + "/api", "--local-db", dbA, "consult", "ask", "--patient", "p1", "thirsty"})
		done <- result{errOut.String(), err}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first invocation never reached the assistant")
	}

	// A second invocation finishing must not tear down the first one.
	dbB := filepath.Join(t.TempDir(), "b.db")
	out, _, err := run(t, "--api-url", dead.URL+"/api", "--local-db", dbB, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "mode:     offline")
	close(release)

	res := <-done
	require.NoError(t, res.err)
	assert.Contains(t, res.errOut, "saved consultation")

	out, _, err = run(t, "--api-url", dead.URL+"/api", "--local-db", dbA, "consult", "history", "--patient", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 consultations")
}

func TestParseAssignments(t *testing.T) {
	u, err := parseAssignments([]string{"firstName=Ann", "height=172.5", "allergies=null"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", u["firstName"])
	assert.Equal(t, 172.5, u["height"])
	assert.Nil(t, u["allergies"])

	_, err = parseAssignments([]string{"novalue"})
	assert.Error(t, err)
}

func TestParseDay(t *testing.T) {
	start, err := parseDay("2026-03-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)

	end, err := parseDay("2026-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 23, 59, 59, 999999999, time.UTC), end)

	zero, err := parseDay("", true)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = parseDay("03/01/2026", false)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "a b...", preview("a\n b  c d", 3))
}
