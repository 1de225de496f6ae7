package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/store"
)

// --- PageSource Mock ---

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Fetch(ctx context.Context, term string, page int) (*model.Page, error) {
	args := m.Called(ctx, term, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Page), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertListings(ctx context.Context, runID string, listings []model.AcceptedListing) (int, error) {
	args := m.Called(ctx, runID, listings)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) ListAccepted(ctx context.Context, runID string) ([]model.AcceptedListing, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AcceptedListing), args.Error(1)
}

func (m *mockStore) ReplaceRejectedLog(ctx context.Context, runID string, rejected []model.RejectedListing) error {
	args := m.Called(ctx, runID, rejected)
	return args.Error(0)
}

func (m *mockStore) ListRejected(ctx context.Context) ([]model.RejectedListing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RejectedListing), args.Error(1)
}

func (m *mockStore) SaveRun(ctx context.Context, run *model.RunSummary) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.RunSummary, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunSummary), args.Error(1)
}

func (m *mockStore) LatestRun(ctx context.Context) (*model.RunSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunSummary), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.RunSummary, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RunSummary), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ store.Store = (*mockStore)(nil)
