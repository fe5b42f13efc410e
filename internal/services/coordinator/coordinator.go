// Package coordinator is the single entry point for durable state on the
// client. Every operation tries the backend first and falls back to the
// local record store when the backend is unreachable or fails.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iyunix/go-telemed/internal/apiclient"
	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/localstore"
	"github.com/iyunix/go-telemed/internal/services/syncer"
)

// AnonymousPatient is the patientId used when nobody is signed in.
const AnonymousPatient = "anonymous"

// Logger is the subset of services.Logger the coordinator needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Remote is the backend surface the coordinator calls. *apiclient.Client
// implements it.
type Remote interface {
	syncer.Remote

	Health(ctx context.Context) (domain.HealthStatus, error)

	CreatePatient(ctx context.Context, p domain.Patient) (domain.Patient, error)
	GetPatient(ctx context.Context, id string) (domain.Patient, error)
	UpdatePatient(ctx context.Context, id string, update domain.PatientUpdate) (domain.Patient, error)

	SaveConsultation(ctx context.Context, c domain.Consultation) (domain.Consultation, error)
	ListConsultations(ctx context.Context, patientID string, limit int) ([]domain.Consultation, error)
	DeleteConsultation(ctx context.Context, id string) error

	SaveMedicalRecord(ctx context.Context, r domain.MedicalRecord) (domain.MedicalRecord, error)
	ListMedicalRecords(ctx context.Context, patientID string) ([]domain.MedicalRecord, error)

	UploadImage(ctx context.Context, img domain.ImageAnalysis) (domain.ImageAnalysis, error)
	ListImages(ctx context.Context, patientID string) ([]domain.ImageAnalysis, error)

	SaveAnalytics(ctx context.Context, e domain.AnalyticsEvent) (domain.AnalyticsEvent, error)
	QueryAnalytics(ctx context.Context, patientID string, f domain.AnalyticsFilter) ([]domain.AnalyticsEvent, error)

	Login(ctx context.Context, email, password string) (domain.LoginResult, error)
	DashboardStats(ctx context.Context) (domain.DashboardStats, error)
}

type Config struct {
	// RemoteTimeout bounds each backend call before falling back.
	RemoteTimeout time.Duration
	// ProbeInterval is how often /health is re-checked while disconnected. Zero disables re-probing.
	ProbeInterval time.Duration
	// AutoSync pushes local records once the backend comes back.
	AutoSync    bool
	SyncTimeout time.Duration
	// DefaultHistoryLimit applies when GetConsultationHistory gets limit <= 0.
	DefaultHistoryLimit int
	// Registerer receives the fallback counter. Nil skips registration.
	Registerer prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		RemoteTimeout:       10 * time.Second,
		ProbeInterval:       30 * time.Second,
		AutoSync:            true,
		SyncTimeout:         2 * time.Minute,
		DefaultHistoryLimit: 10,
	}
}

type Coordinator struct {
	remote Remote
	local  *localstore.Store
	engine *syncer.Engine
	log    Logger
	cfg    Config
	now    func() time.Time

	fallbacks *prometheus.CounterVec

	mu          sync.RWMutex
	connected   bool
	probing     bool
	closed      bool
	currentUser *domain.Patient
	sessionID   string

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(remote Remote, local *localstore.Store, log Logger, cfg Config) *Coordinator {
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemed_coordinator_fallbacks_total",
		Help: "Operations served by the local store after a backend failure.",
	}, []string{"op"})
	if cfg.Registerer != nil {
		if err := cfg.Registerer.Register(fallbacks); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				fallbacks = already.ExistingCollector.(*prometheus.CounterVec)
			} else {
				log.Warn("[Coordinator] fallback counter not registered", "error", err)
			}
		}
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = apiclient.DefaultTimeout
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 2 * time.Minute
	}
	if cfg.DefaultHistoryLimit <= 0 {
		cfg.DefaultHistoryLimit = 10
	}
	return &Coordinator{
		remote:    remote,
		local:     local,
		engine:    syncer.New(remote, log),
		log:       log,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		fallbacks: fallbacks,
		sessionID: domain.NewSessionID(),
		stop:      make(chan struct{}),
	}
}

// Start restores the signed-in patient and probes the backend. When the
// probe fails and ProbeInterval is set, a background loop keeps probing.
func (c *Coordinator) Start(ctx context.Context) error {
	var user domain.Patient
	ok, err := c.local.GetValue(ctx, localstore.KeyCurrentUser, &user)
	if err != nil {
		c.log.Warn("[Coordinator] could not restore current user", "error", err)
	} else if ok {
		c.mu.Lock()
		c.currentUser = &user
		c.mu.Unlock()
	}

	if c.Probe(ctx) {
		c.log.Info("[Coordinator] backend reachable")
		return nil
	}
	c.log.Warn("[Coordinator] backend unreachable, using local storage")
	c.startProbeLoop()
	return nil
}

// Close stops background probing and waits for it to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.stop)
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// Probe checks /health and records the result.
func (c *Coordinator) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RemoteTimeout)
	defer cancel()
	_, err := c.remote.Health(ctx)
	if err != nil {
		c.log.Debug("[Coordinator] health probe failed", "error", err)
	}
	c.mu.Lock()
	c.connected = err == nil
	c.mu.Unlock()
	return err == nil
}

func (c *Coordinator) startProbeLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probing || c.closed || c.cfg.ProbeInterval <= 0 {
		return
	}
	c.probing = true
	c.wg.Add(1)
	go c.probeLoop()
}

func (c *Coordinator) probeLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			c.setProbing(false)
			return
		case <-ticker.C:
			if !c.Probe(context.Background()) {
				continue
			}
			c.log.Info("[Coordinator] backend reachable again")
			// Failures during the sync below must be able to start a new loop.
			c.setProbing(false)
			if c.cfg.AutoSync {
				c.autoSync()
			}
			if !c.IsConnected() {
				c.startProbeLoop()
			}
			return
		}
	}
}

func (c *Coordinator) setProbing(v bool) {
	c.mu.Lock()
	c.probing = v
	c.mu.Unlock()
}

func (c *Coordinator) autoSync() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SyncTimeout)
	defer cancel()
	report, err := c.SyncWithCloud(ctx)
	if err != nil {
		c.log.Warn("[Coordinator] automatic sync incomplete", "failed", report.Failed(), "error", err)
		return
	}
	c.log.Info("[Coordinator] automatic sync complete")
}

// noteRemoteFailure drops to offline mode when the backend could not be
// reached at all. Status errors mean it answered, so the mode stays.
func (c *Coordinator) noteRemoteFailure(err error) {
	var remote *apiclient.RemoteError
	if !errors.As(err, &remote) {
		return
	}
	if remote.Type != apiclient.ErrTypeNetwork && remote.Type != apiclient.ErrTypeTimeout {
		return
	}
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.startProbeLoop()
}

// attempt runs remoteFn when connected and localFn otherwise, or when
// remoteFn fails. Only a local failure reaches the caller.
func attempt[T any](ctx context.Context, c *Coordinator, op string, remoteFn, localFn func(context.Context) (T, error)) (T, error) {
	if c.IsConnected() {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.RemoteTimeout)
		v, err := remoteFn(rctx)
		cancel()
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			var zero T
			return zero, ctxErr
		}
		c.fallbacks.WithLabelValues(op).Inc()
		c.log.Warn("[Coordinator] remote call failed, falling back to local storage", "op", op, "error", err)
		c.noteRemoteFailure(err)
	}
	return localFn(ctx)
}

func (c *Coordinator) defaultPatientID(id string) string {
	if id != "" {
		return id
	}
	if user, ok := c.CurrentUser(); ok {
		return user.PatientID
	}
	return AnonymousPatient
}

// queryByPatient loads and decodes every local record of c for patientID.
// An empty patientID returns the whole collection.
func queryByPatient[T domain.Record](ctx context.Context, local *localstore.Store, c domain.Collection, patientID string) ([]T, error) {
	var raws []json.RawMessage
	if patientID == "" {
		all, err := local.All(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, raw := range all {
			raws = append(raws, raw)
		}
	} else {
		var err error
		if raws, err = local.QueryByField(ctx, c, "patientId", patientID); err != nil {
			return nil, err
		}
	}
	out, err := localstore.DecodeAll[T](raws)
	if err != nil {
		return nil, err
	}
	domain.SortNewestFirst(out)
	return out, nil
}
