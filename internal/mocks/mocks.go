// internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/valutatrade/parser-service/internal/domain/entity"
)

// MockSnapshotStore mocks the SnapshotStore interface
type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Load(ctx context.Context) (*entity.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return entity.EmptySnapshot(), args.Error(1)
	}
	return args.Get(0).(*entity.Snapshot), args.Error(1)
}

func (m *MockSnapshotStore) Save(ctx context.Context, snap *entity.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

// MockRateFetcher mocks the RateFetcher interface
type MockRateFetcher struct {
	mock.Mock
}

func (m *MockRateFetcher) Fetch(ctx context.Context) ([]entity.RatePair, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.RatePair), args.Error(1)
}

// MockRateHistoryRepository mocks the RateHistoryRepository interface
type MockRateHistoryRepository struct {
	mock.Mock
}

func (m *MockRateHistoryRepository) Append(ctx context.Context, pairs []entity.RatePair) error {
	args := m.Called(ctx, pairs)
	return args.Error(0)
}

func (m *MockRateHistoryRepository) FindByPair(ctx context.Context, base, quote entity.CurrencyCode, limit int) ([]entity.HistoryEntry, error) {
	args := m.Called(ctx, base, quote, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.HistoryEntry), args.Error(1)
}

// MockSourceClient mocks an upstream source client
type MockSourceClient struct {
	mock.Mock
}

func (m *MockSourceClient) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSourceClient) FetchRates(ctx context.Context) ([]entity.RatePair, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.RatePair), args.Error(1)
}
