package coordinator

import (
	"context"
	"strings"

	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/localstore"
)

// AuthenticateUser signs a patient in. When the backend cannot answer, the
// credentials are checked against locally stored patients; such sessions
// carry no token.
func (c *Coordinator) AuthenticateUser(ctx context.Context, email, password string) (domain.LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.LoginResult{}, domain.ErrInvalidCredentials
	}
	result, err := attempt(ctx, c, "AuthenticateUser",
		func(ctx context.Context) (domain.LoginResult, error) {
			return c.remote.Login(ctx, email, password)
		},
		func(ctx context.Context) (domain.LoginResult, error) {
			raws, err := c.local.QueryByField(ctx, domain.CollectionPatients, "email", email)
			if err != nil {
				return domain.LoginResult{}, err
			}
			patients, err := localstore.DecodeAll[domain.Patient](raws)
			if err != nil {
				return domain.LoginResult{}, err
			}
			for _, p := range patients {
				if p.CheckPassword(password) {
					return domain.LoginResult{User: p.Sanitized()}, nil
				}
			}
			return domain.LoginResult{}, domain.ErrInvalidCredentials
		})
	if err != nil {
		return domain.LoginResult{}, err
	}
	c.setCurrentUser(ctx, &result.User)
	c.log.Info("[Coordinator] patient signed in", "patientId", result.User.PatientID)
	return result, nil
}

// Logout forgets the current patient.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.currentUser = nil
	c.mu.Unlock()
	return c.local.RemoveValue(ctx, localstore.KeyCurrentUser)
}

// CurrentUser returns the signed-in patient, if any.
func (c *Coordinator) CurrentUser() (domain.Patient, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentUser == nil {
		return domain.Patient{}, false
	}
	return *c.currentUser, true
}

func (c *Coordinator) setCurrentUser(ctx context.Context, p *domain.Patient) {
	user := p.Sanitized()
	c.mu.Lock()
	c.currentUser = &user
	c.mu.Unlock()
	if err := c.local.PutValue(ctx, localstore.KeyCurrentUser, user); err != nil {
		c.log.Warn("[Coordinator] current user not persisted", "error", err)
	}
}
