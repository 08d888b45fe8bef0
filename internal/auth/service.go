package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/ledger"
	"github.com/meridian-gov/meridian/internal/shared"
)

// Service wraps authentication business rules. Login outcomes are
// appended to the audit ledger; a failed attempt is a Deny record.
type Service struct {
	repo     Repository
	recorder *ledger.Recorder
}

// NewService constructs a new Service.
func NewService(repo Repository, recorder *ledger.Recorder) *Service {
	return &Service{repo: repo, recorder: recorder}
}

// Authenticate validates email/password credentials. The decision is
// durably audited before it is returned.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.denyLogin(ctx, nil, "unknown_account")
	}
	if !user.IsActive {
		return nil, s.denyLogin(ctx, user, "inactive_account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, s.denyLogin(ctx, user, "bad_password")
	}

	res := authz.Resource{Type: authz.ResourceUser, ID: user.ID, OwnerID: user.ID}
	dec := authz.Decision{Verdict: authz.Allow}
	if _, err := s.recorder.Record(ctx, user.Principal(), res, authz.ActionLogin, dec, nil); err != nil {
		return nil, err
	}
	return user, nil
}

// denyLogin audits a failed attempt and returns the credential error.
// Unknown accounts are recorded with a zero actor id so probing still
// leaves evidence without confirming account existence to the caller.
func (s *Service) denyLogin(ctx context.Context, user *User, reason string) error {
	actor := authz.Principal{}
	res := authz.Resource{Type: authz.ResourceUser}
	if user != nil {
		actor = authz.Principal{ID: user.ID, Role: user.Role, Active: user.IsActive}
		res.ID = user.ID
		res.OwnerID = user.ID
	}
	dec := authz.Decision{Verdict: authz.Deny, Reason: reason}
	if _, err := s.recorder.Record(ctx, actor, res, authz.ActionLogin, dec, nil); err != nil {
		return err
	}
	return shared.ErrInvalidCredentials
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
