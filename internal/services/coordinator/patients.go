package coordinator

import (
	"context"

	"github.com/iyunix/go-telemed/internal/domain"
)

// CreatePatient validates p, fills its identity and timestamps, hashes the
// password and stores it. The returned patient never carries the password.
func (c *Coordinator) CreatePatient(ctx context.Context, p domain.Patient) (domain.Patient, error) {
	if p.PatientID == "" {
		p.PatientID = domain.NewID()
	}
	now := c.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.ApplyDerivedFields(now)
	if err := p.HashPassword(); err != nil {
		return domain.Patient{}, err
	}
	if err := p.Validate(); err != nil {
		return domain.Patient{}, err
	}

	return attempt(ctx, c, "CreatePatient",
		func(ctx context.Context) (domain.Patient, error) {
			return c.remote.CreatePatient(ctx, p)
		},
		func(ctx context.Context) (domain.Patient, error) {
			if err := c.local.Put(ctx, domain.CollectionPatients, p.PatientID, p); err != nil {
				return domain.Patient{}, err
			}
			return p.Sanitized(), nil
		})
}

func (c *Coordinator) GetPatient(ctx context.Context, id string) (domain.Patient, error) {
	return attempt(ctx, c, "GetPatient",
		func(ctx context.Context) (domain.Patient, error) {
			return c.remote.GetPatient(ctx, id)
		},
		func(ctx context.Context) (domain.Patient, error) {
			var p domain.Patient
			if err := c.local.Get(ctx, domain.CollectionPatients, id, &p); err != nil {
				return domain.Patient{}, err
			}
			return p.Sanitized(), nil
		})
}

// UpdatePatient merges update onto the stored patient. The identity and
// creation time never change.
func (c *Coordinator) UpdatePatient(ctx context.Context, id string, update domain.PatientUpdate) (domain.Patient, error) {
	update, err := update.Normalize()
	if err != nil {
		return domain.Patient{}, err
	}

	updated, err := attempt(ctx, c, "UpdatePatient",
		func(ctx context.Context) (domain.Patient, error) {
			return c.remote.UpdatePatient(ctx, id, update)
		},
		func(ctx context.Context) (domain.Patient, error) {
			var current domain.Patient
			if err := c.local.Get(ctx, domain.CollectionPatients, id, &current); err != nil {
				return domain.Patient{}, err
			}
			merged, err := current.Merge(update)
			if err != nil {
				return domain.Patient{}, err
			}
			now := c.now()
			merged.UpdatedAt = now
			merged.ApplyDerivedFields(now)
			if err := merged.Validate(); err != nil {
				return domain.Patient{}, err
			}
			if err := c.local.Put(ctx, domain.CollectionPatients, id, merged); err != nil {
				return domain.Patient{}, err
			}
			return merged.Sanitized(), nil
		})
	if err != nil {
		return domain.Patient{}, err
	}

	if user, ok := c.CurrentUser(); ok && user.PatientID == id {
		c.setCurrentUser(ctx, &updated)
	}
	return updated, nil
}
