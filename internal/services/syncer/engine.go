// Package syncer pushes locally accumulated records to the backend.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/iyunix/go-telemed/internal/domain"
)

// Logger is the subset of services.Logger the engine needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Remote upserts one collection by natural id.
type Remote interface {
	Sync(ctx context.Context, c domain.Collection, records map[string]json.RawMessage) (domain.SyncReport, error)
}

type Engine struct {
	remote Remote
	log    Logger
	now    func() time.Time
}

func New(remote Remote, log Logger) *Engine {
	return &Engine{remote: remote, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Push sends every sync collection of export in dependency order, patients
// first. Each collection is its own failure domain: one failing never stops
// the rest, and the report carries an entry per collection.
func (e *Engine) Push(ctx context.Context, export domain.Export) domain.SyncReport {
	report := domain.NewSyncReport(e.now())
	for _, c := range domain.SyncCollections {
		if err := ctx.Err(); err != nil {
			report.Results[c] = domain.CollectionSyncResult{Error: err.Error()}
			continue
		}
		records := export.Collections[c]
		if len(records) == 0 {
			report.Results[c] = domain.CollectionSyncResult{Success: true}
			continue
		}
		report.Results[c] = e.pushCollection(ctx, c, records)
	}

	if failed := report.Failed(); len(failed) > 0 {
		e.log.Warn("[SyncEngine] sync finished with failures", "failed", failed)
	} else {
		e.log.Info("[SyncEngine] sync complete", "collections", len(report.Results))
	}
	return report
}

func (e *Engine) pushCollection(ctx context.Context, c domain.Collection, records map[string]json.RawMessage) domain.CollectionSyncResult {
	remote, err := e.remote.Sync(ctx, c, records)
	if err != nil {
		e.log.Error("[SyncEngine] collection failed", "collection", c, "records", len(records), "error", err)
		msg := err.Error()
		if res, ok := remote.Results[c]; ok && res.Error != "" {
			msg = res.Error
		}
		return domain.CollectionSyncResult{Error: msg}
	}
	res, ok := remote.Results[c]
	if !ok {
		return domain.CollectionSyncResult{Error: errMissingResult.Error()}
	}
	return res
}

var errMissingResult = errors.New("backend report has no entry for collection")
