package cases

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/ledger"
	"github.com/meridian-gov/meridian/internal/shared"
)

type mockRepository struct {
	cases  map[int64]Case
	nextID int64
}

func newMockRepository(seed ...Case) *mockRepository {
	m := &mockRepository{cases: make(map[int64]Case), nextID: 100}
	for _, c := range seed {
		m.cases[c.ID] = c
	}
	return m
}

func (m *mockRepository) ListCases(ctx context.Context, scope authz.Predicate, filter Filter) ([]Case, int, error) {
	var out []Case
	for _, c := range m.cases {
		if !scope.Matches(c.Resource()) {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockRepository) GetCase(ctx context.Context, id int64) (Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return Case{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *mockRepository) CreateCase(ctx context.Context, c Case, audit func(context.Context, Case) error) (Case, error) {
	m.nextID++
	c.ID = m.nextID
	if err := audit(ctx, c); err != nil {
		return Case{}, err
	}
	m.cases[c.ID] = c
	return c, nil
}

func (m *mockRepository) UpdateCase(ctx context.Context, c Case, audit func(context.Context, Case) error) (Case, error) {
	if _, ok := m.cases[c.ID]; !ok {
		return Case{}, shared.ErrNotFound
	}
	if err := audit(ctx, c); err != nil {
		return Case{}, err
	}
	m.cases[c.ID] = c
	return c, nil
}

type stubDirectory struct {
	principals map[int64]authz.Principal
}

func (s *stubDirectory) PrincipalByID(ctx context.Context, id int64) (authz.Principal, error) {
	p, ok := s.principals[id]
	if !ok {
		return authz.Principal{}, shared.ErrNotFound
	}
	return p, nil
}

func newTestService(t *testing.T, repo *mockRepository, dir authz.Directory) (*Service, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	led, err := ledger.NewLedger(context.Background(), ledger.Config{Store: store})
	require.NoError(t, err)
	t.Cleanup(led.Close)
	eval := authz.NewEvaluator(authz.NewRegistry(), dir)
	svc := NewService(repo, eval, ledger.NewRecorder(led, nil), slog.Default())
	return svc, store
}

func TestCitizenUpdatesOwnCase(t *testing.T) {
	repo := newMockRepository(Case{ID: 42, Title: "Original", Status: StatusOpen, OwnerID: 7})
	svc, store := newTestService(t, repo, &stubDirectory{})
	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}

	updated, err := svc.UpdateCase(context.Background(), citizen, 42, authz.FieldDelta{"title": "Amended"})
	require.NoError(t, err)
	assert.Equal(t, "Amended", updated.Title)

	recs, err := store.Range(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(authz.Allow), recs[0].Decision)
	assert.Contains(t, string(recs[0].FieldDiff), "Amended")
	assert.Contains(t, string(recs[0].FieldDiff), "Original")
}

func TestCitizenCannotReassignJudge(t *testing.T) {
	// Citizen 7 owns case 42 and sends title plus assigned_judge_id in
	// one request. No field is applied and exactly one Deny record is
	// left behind.
	repo := newMockRepository(Case{ID: 42, Title: "Original", Status: StatusOpen, OwnerID: 7})
	dir := &stubDirectory{principals: map[int64]authz.Principal{
		9: {ID: 9, Role: authz.RoleClerk, Active: true},
	}}
	svc, store := newTestService(t, repo, dir)
	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}

	_, err := svc.UpdateCase(context.Background(), citizen, 42, authz.FieldDelta{
		"title":             "x",
		"assigned_judge_id": int64(9),
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, "Original", repo.cases[42].Title)
	assert.Zero(t, repo.cases[42].AssignedJudgeID)

	recs, err := store.Range(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(authz.Deny), recs[0].Decision)
	assert.Equal(t, authz.ReasonFieldOutOfScope, recs[0].Reason)
	assert.Empty(t, recs[0].FieldDiff)
}

func TestClerkAssignsActiveJudge(t *testing.T) {
	repo := newMockRepository(Case{ID: 42, Title: "Original", Status: StatusOpen, OwnerID: 7})
	dir := &stubDirectory{principals: map[int64]authz.Principal{
		9:  {ID: 9, Role: authz.RoleJudge, Active: true},
		10: {ID: 10, Role: authz.RoleJudge, Active: false},
	}}
	svc, _ := newTestService(t, repo, dir)
	clerk := authz.Principal{ID: 2, Role: authz.RoleClerk, Active: true}

	updated, err := svc.UpdateCase(context.Background(), clerk, 42, authz.FieldDelta{"assigned_judge_id": int64(9)})
	require.NoError(t, err)
	assert.Equal(t, int64(9), updated.AssignedJudgeID)

	_, err = svc.UpdateCase(context.Background(), clerk, 42, authz.FieldDelta{"assigned_judge_id": int64(10)})
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, int64(9), repo.cases[42].AssignedJudgeID)
}

func TestGetCaseOutsideScopeReadsAsNotFound(t *testing.T) {
	repo := newMockRepository(Case{ID: 42, Title: "Sealed", Status: StatusOpen, OwnerID: 8})
	svc, store := newTestService(t, repo, &stubDirectory{})
	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}

	_, err := svc.GetCase(context.Background(), citizen, 42)
	require.ErrorIs(t, err, shared.ErrNotFound)

	recs, err := store.Range(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestJudgeSeesOnlyAssignedCases(t *testing.T) {
	repo := newMockRepository(
		Case{ID: 1, Title: "Mine", Status: StatusOpen, OwnerID: 7, AssignedJudgeID: 9},
		Case{ID: 2, Title: "Not mine", Status: StatusOpen, OwnerID: 7, AssignedJudgeID: 11},
		Case{ID: 3, Title: "Unassigned", Status: StatusOpen, OwnerID: 7},
	)
	svc, _ := newTestService(t, repo, &stubDirectory{})
	judge := authz.Principal{ID: 9, Role: authz.RoleJudge, Active: true}

	list, total, err := svc.ListCases(context.Background(), judge, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ID)
}

func TestCreateCaseOwnedByActor(t *testing.T) {
	repo := newMockRepository()
	svc, store := newTestService(t, repo, &stubDirectory{})
	lawyer := authz.Principal{ID: 4, Role: authz.RoleLawyer, Active: true}

	created, err := svc.CreateCase(context.Background(), lawyer, CreateInput{
		Number: "2026-CV-0042",
		Title:  "Filed matter",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), created.OwnerID)
	assert.Equal(t, StatusOpen, created.Status)

	recs, err := store.Range(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(authz.ActionCreate), recs[0].Action)
}

func TestJudgeUpdatesStatusOnAssignedCase(t *testing.T) {
	repo := newMockRepository(Case{ID: 5, Title: "Hearing", Status: StatusOpen, OwnerID: 7, AssignedJudgeID: 9})
	svc, _ := newTestService(t, repo, &stubDirectory{})
	judge := authz.Principal{ID: 9, Role: authz.RoleJudge, Active: true}

	updated, err := svc.UpdateCase(context.Background(), judge, 5, authz.FieldDelta{"status": "closed"})
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, updated.Status)

	// Titles are outside a judge's write scope.
	_, err = svc.UpdateCase(context.Background(), judge, 5, authz.FieldDelta{"title": "Renamed"})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

// faultyStore refuses every insert so appends always fail.
type faultyStore struct {
	*ledger.MemoryStore
}

func (f *faultyStore) Insert(ctx context.Context, rec ledger.Record) error {
	return errors.New("store unavailable")
}

func newBrokenLedgerService(t *testing.T, repo *mockRepository) *Service {
	t.Helper()
	led, err := ledger.NewLedger(context.Background(), ledger.Config{Store: &faultyStore{ledger.NewMemoryStore()}})
	require.NoError(t, err)
	t.Cleanup(led.Close)
	eval := authz.NewEvaluator(authz.NewRegistry(), &stubDirectory{})
	return NewService(repo, eval, ledger.NewRecorder(led, nil), slog.Default())
}

func TestUpdateCaseRolledBackWhenAppendFails(t *testing.T) {
	repo := newMockRepository(Case{ID: 42, Title: "Original", Status: StatusOpen, OwnerID: 7})
	svc := newBrokenLedgerService(t, repo)
	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}

	_, err := svc.UpdateCase(context.Background(), citizen, 42, authz.FieldDelta{"title": "Amended"})
	require.Error(t, err)

	got, err := repo.GetCase(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Original", got.Title, "an unaudited mutation must never persist")
}

func TestCreateCaseRolledBackWhenAppendFails(t *testing.T) {
	repo := newMockRepository()
	svc := newBrokenLedgerService(t, repo)
	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}

	_, err := svc.CreateCase(context.Background(), citizen, CreateInput{Title: "New filing"})
	require.Error(t, err)
	assert.Empty(t, repo.cases)
}
