package monitoring

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/store"
)

type mockRuns struct {
	mock.Mock
}

func (m *mockRuns) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.RunSummary, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RunSummary), args.Error(1)
}
