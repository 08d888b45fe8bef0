// Package audit is the read-side surface of the audit ledger: listing,
// integrity verification and compliance export. All writes go through
// the ledger committer; nothing here mutates records.
package audit

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/ledger"
	"github.com/meridian-gov/meridian/internal/shared"
)

// Service coordinates ledger reads and chain verification.
type Service struct {
	reader   *ledger.Reader
	verifier *ledger.Verifier
	group    singleflight.Group
}

// NewService builds Service instance.
func NewService(reader *ledger.Reader, verifier *ledger.Verifier) *Service {
	return &Service{reader: reader, verifier: verifier}
}

// Records returns the ledger slice [from, to] visible to the actor.
// to = 0 means up to the latest record.
func (s *Service) Records(ctx context.Context, actor authz.Principal, from, to int64) ([]ledger.Record, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("audit: reader not configured")
	}
	if from < 1 {
		from = 1
	}
	return s.reader.RecordsFor(ctx, actor, from, to)
}

// Verify recomputes the hash chain over [from, to]. Concurrent calls
// for the same range share one verification pass; the chain walk is
// expensive and the answer is identical for every waiter.
func (s *Service) Verify(ctx context.Context, from, to int64) error {
	if s.verifier == nil {
		return fmt.Errorf("audit: verifier not configured")
	}
	if from < 1 {
		from = 1
	}
	key := fmt.Sprintf("%d-%d", from, to)
	_, err, _ := s.group.Do(key, func() (any, error) {
		return nil, s.verifier.VerifyChain(ctx, from, to)
	})
	return err
}

// Export streams the full record range to fn. Only admins and clerks
// may export arbitrary ranges; everyone else is refused outright
// rather than silently narrowed.
func (s *Service) Export(ctx context.Context, actor authz.Principal, from, to int64, fn func(ledger.Record) error) error {
	if s.reader == nil {
		return fmt.Errorf("audit: reader not configured")
	}
	if !actor.Active || (actor.Role != authz.RoleAdmin && actor.Role != authz.RoleClerk) {
		return shared.ErrForbidden
	}
	return s.reader.ExportRange(ctx, from, to, fn)
}
