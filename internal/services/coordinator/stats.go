package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/localstore"
)

func (c *Coordinator) GetDashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	return attempt(ctx, c, "GetDashboardStats",
		func(ctx context.Context) (domain.DashboardStats, error) {
			return c.remote.DashboardStats(ctx)
		},
		c.localDashboardStats)
}

func (c *Coordinator) localDashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	export, err := c.local.Export(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	raws := make([]json.RawMessage, 0, len(export.Collections[domain.CollectionConsultations]))
	for _, raw := range export.Collections[domain.CollectionConsultations] {
		raws = append(raws, raw)
	}
	consultations, err := localstore.DecodeAll[domain.Consultation](raws)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	return domain.DashboardStats{
		TotalPatients:          len(export.Collections[domain.CollectionPatients]),
		TotalConsultations:     len(consultations),
		TotalMedicalRecords:    len(export.Collections[domain.CollectionMedicalRecords]),
		TotalImageAnalyses:     len(export.Collections[domain.CollectionImageAnalyses]),
		ConsultationsByFeature: domain.CountFeatures(consultations),
	}, nil
}

// ExportAll dumps every local collection.
func (c *Coordinator) ExportAll(ctx context.Context) (domain.Export, error) {
	return c.local.Export(ctx)
}

// SyncWithCloud pushes every local collection to the backend. It fails with
// domain.ErrOffline when the backend is not reachable. A partial failure
// returns the report alongside the error.
func (c *Coordinator) SyncWithCloud(ctx context.Context) (domain.SyncReport, error) {
	if !c.IsConnected() {
		return domain.SyncReport{}, domain.ErrOffline
	}
	export, err := c.local.Export(ctx)
	if err != nil {
		return domain.SyncReport{}, err
	}
	report := c.engine.Push(ctx, export)
	if failed := report.Failed(); len(failed) > 0 {
		return report, fmt.Errorf("sync failed for %v", failed)
	}
	return report, nil
}
