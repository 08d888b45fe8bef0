package users

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/ledger"
	"github.com/meridian-gov/meridian/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, u User, audit func(context.Context, User) error) (User, error)
	UpdateUser(ctx context.Context, u User, audit func(context.Context, User) error) (User, error)
}

// Service handles account management gated by the policy evaluator.
// Every evaluated decision, Deny included, is written to the audit
// ledger before the outcome is returned, and a mutation commits only
// after its audit record does.
type Service struct {
	repo     RepositoryPort
	eval     *authz.Evaluator
	recorder *ledger.Recorder
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, eval *authz.Evaluator, recorder *ledger.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, eval: eval, recorder: recorder, logger: logger}
}

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Role     string `json:"role" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// ListUsers returns the accounts visible to the actor.
func (s *Service) ListUsers(ctx context.Context, actor authz.Principal) ([]User, error) {
	scope := authz.ScopeFor(actor, authz.ResourceUser)
	switch {
	case scope.Unrestricted():
		return s.repo.ListUsers(ctx)
	case scope.Empty():
		return nil, shared.ErrForbidden
	default:
		self, err := s.repo.GetUser(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		return []User{self}, nil
	}
}

// GetUser returns one account if the actor may read it.
func (s *Service) GetUser(ctx context.Context, actor authz.Principal, id int64) (User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	dec := s.eval.Evaluate(ctx, actor, user.Resource(), authz.ActionRead, nil)
	if _, err := s.recorder.Record(ctx, actor, user.Resource(), authz.ActionRead, dec, nil); err != nil {
		return User{}, err
	}
	if !dec.Allowed() {
		return User{}, fmt.Errorf("%w: %s", shared.ErrForbidden, dec.Reason)
	}
	return user, nil
}

// CreateUser provisions a new account. Only roles whose capability
// table grants user creation may call this.
func (s *Service) CreateUser(ctx context.Context, actor authz.Principal, input CreateInput) (User, error) {
	role := authz.Role(input.Role)
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, input.Role)
	}

	res := authz.Resource{Type: authz.ResourceUser}
	delta := authz.FieldDelta{"email": input.Email, "name": input.Name, "role": input.Role}
	dec := s.eval.Evaluate(ctx, actor, res, authz.ActionCreate, delta)
	if !dec.Allowed() {
		if _, err := s.recorder.Record(ctx, actor, res, authz.ActionCreate, dec, nil); err != nil {
			return User{}, err
		}
		return User{}, fmt.Errorf("%w: %s", shared.ErrForbidden, dec.Reason)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	created, err := s.repo.CreateUser(ctx, User{
		Email:        input.Email,
		Name:         input.Name,
		Role:         role,
		PasswordHash: string(hash),
		IsActive:     true,
	}, func(ctx context.Context, persisted User) error {
		diff := map[string]ledger.FieldChange{
			"email": {After: persisted.Email},
			"name":  {After: persisted.Name},
			"role":  {After: string(persisted.Role)},
		}
		if _, rerr := s.recorder.Record(ctx, actor, persisted.Resource(), authz.ActionCreate, dec, diff); rerr != nil {
			s.logger.Error("audit append failed, user create rolled back", slog.Int64("user_id", persisted.ID), slog.Any("error", rerr))
			return rerr
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return created, nil
}

// UpdateUser applies the permitted field deltas to an account.
func (s *Service) UpdateUser(ctx context.Context, actor authz.Principal, id int64, delta authz.FieldDelta) (User, error) {
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}

	dec := s.eval.Evaluate(ctx, actor, current.Resource(), authz.ActionUpdate, delta)
	if !dec.Allowed() {
		if _, rerr := s.recorder.Record(ctx, actor, current.Resource(), authz.ActionUpdate, dec, nil); rerr != nil {
			return User{}, rerr
		}
		return User{}, fmt.Errorf("%w: %s", shared.ErrForbidden, dec.Reason)
	}

	next, diff, err := applyDelta(current, delta)
	if err != nil {
		return User{}, err
	}
	if len(diff) == 0 {
		return current, nil
	}

	updated, err := s.repo.UpdateUser(ctx, next, func(ctx context.Context, persisted User) error {
		if _, rerr := s.recorder.Record(ctx, actor, persisted.Resource(), authz.ActionUpdate, dec, diff); rerr != nil {
			s.logger.Error("audit append failed, user update rolled back", slog.Int64("user_id", persisted.ID), slog.Any("error", rerr))
			return rerr
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

// applyDelta copies the requested field values onto the account and
// reports the before/after pairs that actually changed. The evaluator
// has already rejected out-of-scope fields; anything left unknown here
// is a malformed request.
func applyDelta(u User, delta authz.FieldDelta) (User, map[string]ledger.FieldChange, error) {
	diff := make(map[string]ledger.FieldChange, len(delta))
	for field, raw := range delta {
		switch field {
		case "email":
			v, ok := raw.(string)
			if !ok {
				return User{}, nil, fmt.Errorf("%w: email must be a string", shared.ErrValidation)
			}
			if v != u.Email {
				diff[field] = ledger.FieldChange{Before: u.Email, After: v}
				u.Email = v
			}
		case "name":
			v, ok := raw.(string)
			if !ok {
				return User{}, nil, fmt.Errorf("%w: name must be a string", shared.ErrValidation)
			}
			if v != u.Name {
				diff[field] = ledger.FieldChange{Before: u.Name, After: v}
				u.Name = v
			}
		case "role":
			v, ok := raw.(string)
			if !ok || !authz.Role(v).Valid() {
				return User{}, nil, fmt.Errorf("%w: invalid role", shared.ErrValidation)
			}
			if authz.Role(v) != u.Role {
				diff[field] = ledger.FieldChange{Before: string(u.Role), After: v}
				u.Role = authz.Role(v)
			}
		case "is_active":
			v, ok := raw.(bool)
			if !ok {
				return User{}, nil, fmt.Errorf("%w: is_active must be a boolean", shared.ErrValidation)
			}
			if v != u.IsActive {
				diff[field] = ledger.FieldChange{Before: u.IsActive, After: v}
				u.IsActive = v
			}
		default:
			return User{}, nil, fmt.Errorf("%w: unknown field %q", shared.ErrValidation, field)
		}
	}
	return u, diff, nil
}
