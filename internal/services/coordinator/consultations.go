package coordinator

import (
	"context"
	"errors"

	"github.com/iyunix/go-telemed/internal/domain"
)

// SaveConsultation records one AI exchange. patientId defaults to the
// signed-in patient, status to completed.
func (c *Coordinator) SaveConsultation(ctx context.Context, in domain.Consultation) (domain.Consultation, error) {
	if in.ConsultationID == "" {
		in.ConsultationID = domain.NewID()
	}
	in.PatientID = c.defaultPatientID(in.PatientID)
	if in.SessionID == "" {
		in.SessionID = c.sessionID
	}
	if in.Status == "" {
		in.Status = domain.StatusCompleted
	}
	now := c.now()
	in.Timestamp, in.CreatedAt = now, now
	if err := in.Validate(); err != nil {
		return domain.Consultation{}, err
	}

	return attempt(ctx, c, "SaveConsultation",
		func(ctx context.Context) (domain.Consultation, error) {
			return c.remote.SaveConsultation(ctx, in)
		},
		func(ctx context.Context) (domain.Consultation, error) {
			if err := c.local.Put(ctx, domain.CollectionConsultations, in.ConsultationID, in); err != nil {
				return domain.Consultation{}, err
			}
			return in, nil
		})
}

// GetConsultationHistory returns up to limit consultations, newest first.
func (c *Coordinator) GetConsultationHistory(ctx context.Context, patientID string, limit int) ([]domain.Consultation, error) {
	if limit <= 0 {
		limit = c.cfg.DefaultHistoryLimit
	}
	return attempt(ctx, c, "GetConsultationHistory",
		func(ctx context.Context) ([]domain.Consultation, error) {
			return c.remote.ListConsultations(ctx, patientID, limit)
		},
		func(ctx context.Context) ([]domain.Consultation, error) {
			out, err := queryByPatient[domain.Consultation](ctx, c.local, domain.CollectionConsultations, patientID)
			if err != nil {
				return nil, err
			}
			if len(out) > limit {
				out = out[:limit]
			}
			return out, nil
		})
}

// DeleteConsultation removes a consultation. After a backend delete any
// local copy is removed too.
func (c *Coordinator) DeleteConsultation(ctx context.Context, id string) error {
	_, err := attempt(ctx, c, "DeleteConsultation",
		func(ctx context.Context) (struct{}, error) {
			if err := c.remote.DeleteConsultation(ctx, id); err != nil {
				return struct{}{}, err
			}
			if err := c.local.Delete(ctx, domain.CollectionConsultations, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
				c.log.Warn("[Coordinator] local copy not removed", "consultationId", id, "error", err)
			}
			return struct{}{}, nil
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.local.Delete(ctx, domain.CollectionConsultations, id)
		})
	return err
}

// ClearConsultationHistory drops local consultations for patientID, or all of
// them when patientID is empty. The backend is not touched.
func (c *Coordinator) ClearConsultationHistory(ctx context.Context, patientID string) (int, error) {
	if patientID == "" {
		all, err := c.local.All(ctx, domain.CollectionConsultations)
		if err != nil {
			return 0, err
		}
		return len(all), c.local.Clear(ctx, domain.CollectionConsultations)
	}
	mine, err := queryByPatient[domain.Consultation](ctx, c.local, domain.CollectionConsultations, patientID)
	if err != nil {
		return 0, err
	}
	for _, cons := range mine {
		if err := c.local.Delete(ctx, domain.CollectionConsultations, cons.ConsultationID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
	}
	return len(mine), nil
}
