package documents

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
	docs   map[int64]Document
	nextID int64
}

func newMockRepository(seed ...Document) *mockRepository {
	m := &mockRepository{docs: make(map[int64]Document), nextID: 100}
	for _, d := range seed {
		m.docs[d.ID] = d
	}
	return m
}

func (m *mockRepository) ListByCase(ctx context.Context, scope authz.Predicate, caseID int64) ([]Document, error) {
	var out []Document
	for _, d := range m.docs {
		if d.CaseID == caseID && scope.Matches(d.Resource()) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockRepository) GetDocument(ctx context.Context, id int64) (Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	return d, nil
}

func (m *mockRepository) CreateDocument(ctx context.Context, d Document, audit func(context.Context, Document) error) (Document, error) {
	m.nextID++
	d.ID = m.nextID
	if err := audit(ctx, d); err != nil {
		return Document{}, err
	}
	m.docs[d.ID] = d
	return d, nil
}

func (m *mockRepository) UpdateDocument(ctx context.Context, d Document, audit func(context.Context, Document) error) (Document, error) {
	if _, ok := m.docs[d.ID]; !ok {
		return Document{}, shared.ErrNotFound
	}
	if err := audit(ctx, d); err != nil {
		return Document{}, err
	}
	m.docs[d.ID] = d
	return d, nil
}

func newTestService(t *testing.T, repo *mockRepository) (*Service, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	led, err := ledger.NewLedger(context.Background(), ledger.Config{Store: store})
	require.NoError(t, err)
	t.Cleanup(led.Close)
	eval := authz.NewEvaluator(authz.NewRegistry(), nil)
	svc := NewService(repo, eval, ledger.NewRecorder(led, nil), slog.Default())
	return svc, store
}

func TestDocumentReadIsAudited(t *testing.T) {
	repo := newMockRepository(Document{ID: 1, CaseID: 42, Title: "Evidence", MimeType: "application/pdf", OwnerID: 7})
	svc, store := newTestService(t, repo)
	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}

	d, err := svc.GetDocument(context.Background(), citizen, 1)
	require.NoError(t, err)
	assert.Equal(t, "Evidence", d.Title)

	recs, err := store.Range(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(authz.ActionRead), recs[0].Action)
	assert.Equal(t, string(authz.Allow), recs[0].Decision)
}

func TestDocumentOutsideScopeReadsAsNotFound(t *testing.T) {
	repo := newMockRepository(Document{ID: 1, CaseID: 42, Title: "Sealed", MimeType: "application/pdf", OwnerID: 8})
	svc, _ := newTestService(t, repo)
	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}

	_, err := svc.GetDocument(context.Background(), citizen, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestJudgeReadsDocumentsOfAssignedCase(t *testing.T) {
	repo := newMockRepository(
		Document{ID: 1, CaseID: 42, Title: "Mine", MimeType: "text/plain", OwnerID: 7, AssignedJudgeID: 9},
		Document{ID: 2, CaseID: 43, Title: "Elsewhere", MimeType: "text/plain", OwnerID: 7, AssignedJudgeID: 11},
	)
	svc, _ := newTestService(t, repo)
	judge := authz.Principal{ID: 9, Role: authz.RoleJudge, Active: true}

	list, err := svc.ListByCase(context.Background(), judge, 42)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ID)

	_, err = svc.GetDocument(context.Background(), judge, 2)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCitizenUploadsDocument(t *testing.T) {
	repo := newMockRepository()
	svc, store := newTestService(t, repo)
	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}

	created, err := svc.CreateDocument(context.Background(), citizen, CreateInput{
		CaseID:   42,
		Title:    "Statement",
		MimeType: "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.OwnerID)

	recs, err := store.Range(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, string(recs[0].FieldDiff), "Statement")
}

func TestCitizenCannotUpdateDocument(t *testing.T) {
	// Citizens may file documents but not amend them afterwards.
	repo := newMockRepository(Document{ID: 1, CaseID: 42, Title: "Filed", MimeType: "application/pdf", OwnerID: 7})
	svc, store := newTestService(t, repo)
	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}

	_, err := svc.UpdateDocument(context.Background(), citizen, 1, authz.FieldDelta{"title": "Edited"})
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, "Filed", repo.docs[1].Title)

	recs, _ := store.Range(context.Background(), 1, 0)
	require.Len(t, recs, 1)
	assert.Equal(t, authz.ReasonNoRule, recs[0].Reason)
}

// faultyStore refuses every insert so appends always fail.
type faultyStore struct {
	*ledger.MemoryStore
}

func (f *faultyStore) Insert(ctx context.Context, rec ledger.Record) error {
	return errors.New("store unavailable")
}

func TestUpdateDocumentRolledBackWhenAppendFails(t *testing.T) {
	repo := newMockRepository(Document{ID: 1, CaseID: 42, Title: "Brief", MimeType: "application/pdf", OwnerID: 5})
	led, err := ledger.NewLedger(context.Background(), ledger.Config{Store: &faultyStore{ledger.NewMemoryStore()}})
	require.NoError(t, err)
	t.Cleanup(led.Close)
	svc := NewService(repo, authz.NewEvaluator(authz.NewRegistry(), nil), ledger.NewRecorder(led, nil), slog.Default())
	lawyer := authz.Principal{ID: 5, Role: authz.RoleLawyer, Active: true}

	_, err = svc.UpdateDocument(context.Background(), lawyer, 1, authz.FieldDelta{"title": "Amended brief"})
	require.Error(t, err)

	got, err := repo.GetDocument(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Brief", got.Title, "an unaudited mutation must never persist")
}
