//go:build !integration

package main

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/store"
)

type mockStore struct{ mock.Mock }

var _ store.Store = (*mockStore)(nil)

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
	return m.Called(ctx, runID, rejected).Error(0)
}

func (m *mockStore) ListRejected(ctx context.Context) ([]model.RejectedListing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RejectedListing), args.Error(1)
}

func (m *mockStore) SaveRun(ctx context.Context, run *model.RunSummary) error {
	return m.Called(ctx, run).Error(0)
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
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
