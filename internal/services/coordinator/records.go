package coordinator

import (
	"context"

	"github.com/iyunix/go-telemed/internal/domain"
)

func (c *Coordinator) SaveMedicalRecord(ctx context.Context, rec domain.MedicalRecord) (domain.MedicalRecord, error) {
	if rec.RecordID == "" {
		rec.RecordID = domain.NewID()
	}
	rec.PatientID = c.defaultPatientID(rec.PatientID)
	rec.CreatedAt = c.now()
	if err := rec.Validate(); err != nil {
		return domain.MedicalRecord{}, err
	}
	return attempt(ctx, c, "SaveMedicalRecord",
		func(ctx context.Context) (domain.MedicalRecord, error) {
			return c.remote.SaveMedicalRecord(ctx, rec)
		},
		func(ctx context.Context) (domain.MedicalRecord, error) {
			if err := c.local.Put(ctx, domain.CollectionMedicalRecords, rec.RecordID, rec); err != nil {
				return domain.MedicalRecord{}, err
			}
			return rec, nil
		})
}

func (c *Coordinator) GetMedicalRecords(ctx context.Context, patientID string) ([]domain.MedicalRecord, error) {
	return attempt(ctx, c, "GetMedicalRecords",
		func(ctx context.Context) ([]domain.MedicalRecord, error) {
			return c.remote.ListMedicalRecords(ctx, patientID)
		},
		func(ctx context.Context) ([]domain.MedicalRecord, error) {
			return queryByPatient[domain.MedicalRecord](ctx, c.local, domain.CollectionMedicalRecords, patientID)
		})
}

// SaveImageAnalysis uploads the image with its binary. The local fallback
// keeps the metadata only.
func (c *Coordinator) SaveImageAnalysis(ctx context.Context, img domain.ImageAnalysis) (domain.ImageAnalysis, error) {
	if img.ImageID == "" {
		img.ImageID = domain.NewID()
	}
	img.PatientID = c.defaultPatientID(img.PatientID)
	if img.FileSize == 0 {
		img.FileSize = int64(len(img.ImageData))
	}
	img.UploadedAt = c.now()
	if err := img.Validate(); err != nil {
		return domain.ImageAnalysis{}, err
	}
	return attempt(ctx, c, "SaveImageAnalysis",
		func(ctx context.Context) (domain.ImageAnalysis, error) {
			return c.remote.UploadImage(ctx, img)
		},
		func(ctx context.Context) (domain.ImageAnalysis, error) {
			meta := img.WithoutBinary()
			if err := c.local.Put(ctx, domain.CollectionImageAnalyses, meta.ImageID, meta); err != nil {
				return domain.ImageAnalysis{}, err
			}
			return meta, nil
		})
}

func (c *Coordinator) GetImageAnalyses(ctx context.Context, patientID string) ([]domain.ImageAnalysis, error) {
	return attempt(ctx, c, "GetImageAnalyses",
		func(ctx context.Context) ([]domain.ImageAnalysis, error) {
			return c.remote.ListImages(ctx, patientID)
		},
		func(ctx context.Context) ([]domain.ImageAnalysis, error) {
			return queryByPatient[domain.ImageAnalysis](ctx, c.local, domain.CollectionImageAnalyses, patientID)
		})
}

// SaveAnalytics records a usage event stamped with this session.
func (c *Coordinator) SaveAnalytics(ctx context.Context, e domain.AnalyticsEvent) (domain.AnalyticsEvent, error) {
	if e.EventID == "" {
		e.EventID = domain.NewID()
	}
	e.PatientID = c.defaultPatientID(e.PatientID)
	if e.SessionID == "" {
		e.SessionID = c.sessionID
	}
	e.Timestamp = c.now()
	if err := e.Validate(); err != nil {
		return domain.AnalyticsEvent{}, err
	}
	return attempt(ctx, c, "SaveAnalytics",
		func(ctx context.Context) (domain.AnalyticsEvent, error) {
			return c.remote.SaveAnalytics(ctx, e)
		},
		func(ctx context.Context) (domain.AnalyticsEvent, error) {
			if err := c.local.Put(ctx, domain.CollectionAnalytics, e.EventID, e); err != nil {
				return domain.AnalyticsEvent{}, err
			}
			return e, nil
		})
}

// GetAnalytics returns events matching f, newest first, capped at
// domain.MaxAnalyticsResults. An empty patientID matches every patient.
func (c *Coordinator) GetAnalytics(ctx context.Context, patientID string, f domain.AnalyticsFilter) ([]domain.AnalyticsEvent, error) {
	return attempt(ctx, c, "GetAnalytics",
		func(ctx context.Context) ([]domain.AnalyticsEvent, error) {
			return c.remote.QueryAnalytics(ctx, patientID, f)
		},
		func(ctx context.Context) ([]domain.AnalyticsEvent, error) {
			all, err := queryByPatient[domain.AnalyticsEvent](ctx, c.local, domain.CollectionAnalytics, patientID)
			if err != nil {
				return nil, err
			}
			out := make([]domain.AnalyticsEvent, 0, len(all))
			for _, e := range all {
				if f.Matches(e) {
					out = append(out, e)
				}
				if len(out) == f.EffectiveLimit() {
					break
				}
			}
			return out, nil
		})
}
