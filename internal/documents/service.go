package documents

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
	ListByCase(ctx context.Context, scope authz.Predicate, caseID int64) ([]Document, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	CreateDocument(ctx context.Context, d Document, audit func(context.Context, Document) error) (Document, error)
	UpdateDocument(ctx context.Context, d Document, audit func(context.Context, Document) error) (Document, error)
}

// Service gates document access through the policy evaluator. Document
// reads are audited: filings routinely contain sensitive material.
// Mutations commit only after their audit record does; a failed append
// rolls the write back.
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

// CreateInput carries the fields for a new document.
type CreateInput struct {
	CaseID      int64  `json:"case_id" validate:"required"`
	Title       string `json:"title" validate:"required,max=200"`
	MimeType    string `json:"mime_type" validate:"required,max=100"`
	StoragePath string `json:"storage_path" validate:"max=500"`
}

// ListByCase returns the case's documents visible to the actor.
func (s *Service) ListByCase(ctx context.Context, actor authz.Principal, caseID int64) ([]Document, error) {
	scope := authz.ScopeFor(actor, authz.ResourceDocument)
	if scope.Empty() {
		return nil, nil
	}
	return s.repo.ListByCase(ctx, scope, caseID)
}

// GetDocument returns one document if the actor may read it.
func (s *Service) GetDocument(ctx context.Context, actor authz.Principal, id int64) (Document, error) {
	d, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !authz.ScopeFor(actor, authz.ResourceDocument).Matches(d.Resource()) {
		return Document{}, shared.ErrNotFound
	}
	dec := s.eval.Evaluate(ctx, actor, d.Resource(), authz.ActionRead, nil)
	if _, err := s.recorder.Record(ctx, actor, d.Resource(), authz.ActionRead, dec, nil); err != nil {
		return Document{}, err
	}
	if !dec.Allowed() {
		return Document{}, fmt.Errorf("%w: %s", shared.ErrForbidden, dec.Reason)
	}
	return d, nil
}

// CreateDocument attaches a new document to a case owned by the actor's
// view of it.
func (s *Service) CreateDocument(ctx context.Context, actor authz.Principal, input CreateInput) (Document, error) {
	res := authz.Resource{Type: authz.ResourceDocument, OwnerID: actor.ID}
	delta := authz.FieldDelta{"case_id": input.CaseID, "title": input.Title, "mime_type": input.MimeType}

	dec := s.eval.Evaluate(ctx, actor, res, authz.ActionCreate, delta)
	if !dec.Allowed() {
		if _, err := s.recorder.Record(ctx, actor, res, authz.ActionCreate, dec, nil); err != nil {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("%w: %s", shared.ErrForbidden, dec.Reason)
	}

	created, err := s.repo.CreateDocument(ctx, Document{
		CaseID:      input.CaseID,
		Title:       input.Title,
		MimeType:    input.MimeType,
		StoragePath: input.StoragePath,
		OwnerID:     actor.ID,
	}, func(ctx context.Context, persisted Document) error {
		diff := map[string]ledger.FieldChange{
			"case_id":   {After: persisted.CaseID},
			"title":     {After: persisted.Title},
			"mime_type": {After: persisted.MimeType},
		}
		if _, rerr := s.recorder.Record(ctx, actor, persisted.Resource(), authz.ActionCreate, dec, diff); rerr != nil {
			s.logger.Error("audit append failed, document create rolled back", slog.Int64("document_id", persisted.ID), slog.Any("error", rerr))
			return rerr
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return created, nil
}

// UpdateDocument applies the permitted field deltas to a document.
func (s *Service) UpdateDocument(ctx context.Context, actor authz.Principal, id int64, delta authz.FieldDelta) (Document, error) {
	current, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}

	dec := s.eval.Evaluate(ctx, actor, current.Resource(), authz.ActionUpdate, delta)
	if !dec.Allowed() {
		if _, rerr := s.recorder.Record(ctx, actor, current.Resource(), authz.ActionUpdate, dec, nil); rerr != nil {
			return Document{}, rerr
		}
		return Document{}, fmt.Errorf("%w: %s", shared.ErrForbidden, dec.Reason)
	}

	next, diff, err := applyDelta(current, delta)
	if err != nil {
		return Document{}, err
	}
	if len(diff) == 0 {
		return current, nil
	}

	updated, err := s.repo.UpdateDocument(ctx, next, func(ctx context.Context, persisted Document) error {
		if _, rerr := s.recorder.Record(ctx, actor, persisted.Resource(), authz.ActionUpdate, dec, diff); rerr != nil {
			s.logger.Error("audit append failed, document update rolled back", slog.Int64("document_id", persisted.ID), slog.Any("error", rerr))
			return rerr
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return updated, nil
}

func applyDelta(d Document, delta authz.FieldDelta) (Document, map[string]ledger.FieldChange, error) {
	diff := make(map[string]ledger.FieldChange, len(delta))
	for field, raw := range delta {
		switch field {
		case "title":
			v, ok := raw.(string)
			if !ok || v == "" {
				return Document{}, nil, fmt.Errorf("%w: title must be a non-empty string", shared.ErrValidation)
			}
			if v != d.Title {
				diff[field] = ledger.FieldChange{Before: d.Title, After: v}
				d.Title = v
			}
		case "mime_type":
			v, ok := raw.(string)
			if !ok || v == "" {
				return Document{}, nil, fmt.Errorf("%w: mime_type must be a non-empty string", shared.ErrValidation)
			}
			if v != d.MimeType {
				diff[field] = ledger.FieldChange{Before: d.MimeType, After: v}
				d.MimeType = v
			}
		default:
			return Document{}, nil, fmt.Errorf("%w: unknown field %q", shared.ErrValidation, field)
		}
	}
	return d, diff, nil
}
