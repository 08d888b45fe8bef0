package cases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/ledger"
	"github.com/meridian-gov/meridian/internal/shared"
)

// RepositoryPort defines data access used by the service.
type RepositoryPort interface {
	ListCases(ctx context.Context, scope authz.Predicate, filter Filter) ([]Case, int, error)
	GetCase(ctx context.Context, id int64) (Case, error)
	CreateCase(ctx context.Context, c Case, audit func(context.Context, Case) error) (Case, error)
	UpdateCase(ctx context.Context, c Case, audit func(context.Context, Case) error) (Case, error)
}

// Service gates every case mutation through the policy evaluator and
// appends the outcome to the audit ledger before returning. A denied
// request leaves a Deny record and no mutation, and an allowed mutation
// commits only after its audit record does: if the append fails, the
// write is rolled back.
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

// CreateInput carries the fields for a new filing.
type CreateInput struct {
	Number      string `json:"number" validate:"omitempty,max=64"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=10000"`
}

// ListCases returns the page of cases the actor may see.
func (s *Service) ListCases(ctx context.Context, actor authz.Principal, filter Filter) ([]Case, int, error) {
	scope := authz.ScopeFor(actor, authz.ResourceCase)
	if scope.Empty() {
		return nil, 0, nil
	}
	return s.repo.ListCases(ctx, scope, filter)
}

// GetCase returns one case if the actor may read it.
func (s *Service) GetCase(ctx context.Context, actor authz.Principal, id int64) (Case, error) {
	c, err := s.repo.GetCase(ctx, id)
	if err != nil {
		return Case{}, err
	}
	if !authz.ScopeFor(actor, authz.ResourceCase).Matches(c.Resource()) {
		// Scope misses read as not-found so restricted actors cannot
		// probe for the existence of other parties' cases.
		return Case{}, shared.ErrNotFound
	}
	dec := s.eval.Evaluate(ctx, actor, c.Resource(), authz.ActionRead, nil)
	if _, err := s.recorder.Record(ctx, actor, c.Resource(), authz.ActionRead, dec, nil); err != nil {
		return Case{}, err
	}
	if !dec.Allowed() {
		return Case{}, fmt.Errorf("%w: %s", shared.ErrForbidden, dec.Reason)
	}
	return c, nil
}

// CreateCase files a new case owned by the actor.
func (s *Service) CreateCase(ctx context.Context, actor authz.Principal, input CreateInput) (Case, error) {
	res := authz.Resource{Type: authz.ResourceCase, OwnerID: actor.ID}
	delta := authz.FieldDelta{"title": input.Title}
	if input.Number != "" {
		delta["number"] = input.Number
	}
	if input.Description != "" {
		delta["description"] = input.Description
	}

	dec := s.eval.Evaluate(ctx, actor, res, authz.ActionCreate, delta)
	if !dec.Allowed() {
		if _, err := s.recorder.Record(ctx, actor, res, authz.ActionCreate, dec, nil); err != nil {
			return Case{}, err
		}
		return Case{}, fmt.Errorf("%w: %s", shared.ErrForbidden, dec.Reason)
	}

	created, err := s.repo.CreateCase(ctx, Case{
		Number:      input.Number,
		Title:       input.Title,
		Description: input.Description,
		Status:      StatusOpen,
		OwnerID:     actor.ID,
	}, func(ctx context.Context, persisted Case) error {
		diff := map[string]ledger.FieldChange{
			"title":  {After: persisted.Title},
			"status": {After: string(persisted.Status)},
		}
		if persisted.Number != "" {
			diff["number"] = ledger.FieldChange{After: persisted.Number}
		}
		if persisted.Description != "" {
			diff["description"] = ledger.FieldChange{After: persisted.Description}
		}
		if _, rerr := s.recorder.Record(ctx, actor, persisted.Resource(), authz.ActionCreate, dec, diff); rerr != nil {
			s.logger.Error("audit append failed, case create rolled back", slog.Int64("case_id", persisted.ID), slog.Any("error", rerr))
			return rerr
		}
		return nil
	})
	if err != nil {
		return Case{}, err
	}
	return created, nil
}

// UpdateCase applies the permitted field deltas to a case.
func (s *Service) UpdateCase(ctx context.Context, actor authz.Principal, id int64, delta authz.FieldDelta) (Case, error) {
	current, err := s.repo.GetCase(ctx, id)
	if err != nil {
		return Case{}, err
	}

	dec := s.eval.Evaluate(ctx, actor, current.Resource(), authz.ActionUpdate, delta)
	if !dec.Allowed() {
		if _, rerr := s.recorder.Record(ctx, actor, current.Resource(), authz.ActionUpdate, dec, nil); rerr != nil {
			return Case{}, rerr
		}
		return Case{}, fmt.Errorf("%w: %s", shared.ErrForbidden, dec.Reason)
	}

	next, diff, err := applyDelta(current, delta)
	if err != nil {
		return Case{}, err
	}
	if len(diff) == 0 {
		return current, nil
	}

	updated, err := s.repo.UpdateCase(ctx, next, func(ctx context.Context, persisted Case) error {
		if _, rerr := s.recorder.Record(ctx, actor, persisted.Resource(), authz.ActionUpdate, dec, diff); rerr != nil {
			s.logger.Error("audit append failed, case update rolled back", slog.Int64("case_id", persisted.ID), slog.Any("error", rerr))
			return rerr
		}
		return nil
	})
	if err != nil {
		return Case{}, err
	}
	return updated, nil
}

func applyDelta(c Case, delta authz.FieldDelta) (Case, map[string]ledger.FieldChange, error) {
	diff := make(map[string]ledger.FieldChange, len(delta))
	for field, raw := range delta {
		switch field {
		case "title":
			v, ok := raw.(string)
			if !ok || v == "" {
				return Case{}, nil, fmt.Errorf("%w: title must be a non-empty string", shared.ErrValidation)
			}
			if v != c.Title {
				diff[field] = ledger.FieldChange{Before: c.Title, After: v}
				c.Title = v
			}
		case "description":
			v, ok := raw.(string)
			if !ok {
				return Case{}, nil, fmt.Errorf("%w: description must be a string", shared.ErrValidation)
			}
			if v != c.Description {
				diff[field] = ledger.FieldChange{Before: c.Description, After: v}
				c.Description = v
			}
		case "status":
			v, ok := raw.(string)
			if !ok || !Status(v).Valid() {
				return Case{}, nil, fmt.Errorf("%w: invalid status", shared.ErrValidation)
			}
			if Status(v) != c.Status {
				diff[field] = ledger.FieldChange{Before: string(c.Status), After: v}
				c.Status = Status(v)
			}
		case "assigned_judge_id":
			id, ok := judgeID(raw)
			if !ok {
				return Case{}, nil, fmt.Errorf("%w: assigned_judge_id must be an integer", shared.ErrValidation)
			}
			if id != c.AssignedJudgeID {
				diff[field] = ledger.FieldChange{Before: c.AssignedJudgeID, After: id}
				c.AssignedJudgeID = id
			}
		default:
			return Case{}, nil, fmt.Errorf("%w: unknown field %q", shared.ErrValidation, field)
		}
	}
	return c, diff, nil
}

// judgeID accepts the numeric encodings a JSON body can produce.
func judgeID(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
