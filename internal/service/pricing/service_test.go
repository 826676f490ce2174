package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	apperrors "github.com/lessslie/Pelu-PetShop/pkg/errors"
	"github.com/lessslie/Pelu-PetShop/pkg/logger"
	"github.com/lessslie/Pelu-PetShop/pkg/metrics"
)

type MockPriceRepository struct {
	mock.Mock
}

func (m *MockPriceRepository) List(ctx context.Context) ([]model.PriceEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PriceEntry), args.Error(1)
}

func (m *MockPriceRepository) ReplaceAll(ctx context.Context, entries []model.PriceEntry) error {
	return m.Called(ctx, entries).Error(0)
}

func newTestService(repo *MockPriceRepository) Service {
	return NewService(repo, time.Minute, logger.Nop(), metrics.NewNop())
}

func TestGetPrice_ReadThroughAndIdempotent(t *testing.T) {
	repo := new(MockPriceRepository)
	repo.On("List", mock.Anything).Return(model.DefaultPrices().Entries(), nil).Once()
	svc := newTestService(repo)
	ctx := context.Background()

	first := svc.GetPrice(ctx, model.ServiceBath, model.PetSizeMedium)
	second := svc.GetPrice(ctx, model.ServiceBath, model.PetSizeMedium)

	assert.Equal(t, 3000.0, first)
	assert.Equal(t, first, second)
	repo.AssertNumberOfCalls(t, "List", 1)
}

func TestGetPrice_MissingEntryIsZero(t *testing.T) {
	repo := new(MockPriceRepository)
	repo.On("List", mock.Anything).Return([]model.PriceEntry{
		{ServiceType: model.ServiceBath, PetSize: model.PetSizeSmall, Amount: 2500},
	}, nil)
	svc := newTestService(repo)

	assert.Equal(t, 0.0, svc.GetPrice(context.Background(), model.ServiceBathAndCut, model.PetSizeLarge))
}

func TestGetPrice_StoreFailureIsZero(t *testing.T) {
	repo := new(MockPriceRepository)
	repo.On("List", mock.Anything).Return(nil, errors.New("db down"))
	svc := newTestService(repo)

	assert.Equal(t, 0.0, svc.GetPrice(context.Background(), model.ServiceBath, model.PetSizeSmall))

	_, err := svc.Table(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrDependency))
}

func TestSetPrices_ReplacesWholeTable(t *testing.T) {
	repo := new(MockPriceRepository)
	repo.On("List", mock.Anything).Return(model.DefaultPrices().Entries(), nil).Once()
	repo.On("ReplaceAll", mock.Anything, []model.PriceEntry{
		{ServiceType: model.ServiceBath, PetSize: model.PetSizeSmall, Amount: 2800},
	}).Return(nil)
	svc := newTestService(repo)
	ctx := context.Background()

	require.Equal(t, 3000.0, svc.GetPrice(ctx, model.ServiceBath, model.PetSizeMedium))

	table, err := svc.SetPrices(ctx, []model.PriceEntry{{ServiceType: "baño", PetSize: "pequeño", Amount: 2800}})
	require.NoError(t, err)
	assert.Len(t, table, 1)

	assert.Equal(t, 2800.0, svc.GetPrice(ctx, model.ServiceBath, model.PetSizeSmall))
	assert.Equal(t, 0.0, svc.GetPrice(ctx, model.ServiceBath, model.PetSizeMedium))
	repo.AssertNumberOfCalls(t, "List", 1)
}

func TestSetPrices_StoreFailureKeepsOldTable(t *testing.T) {
	repo := new(MockPriceRepository)
	repo.On("List", mock.Anything).Return(model.DefaultPrices().Entries(), nil).Once()
	repo.On("ReplaceAll", mock.Anything, mock.Anything).Return(errors.New("tx aborted"))
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.SetPrices(ctx, []model.PriceEntry{{ServiceType: "bath", PetSize: "small", Amount: 1}})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrDependency))

	assert.Equal(t, 2500.0, svc.GetPrice(ctx, model.ServiceBath, model.PetSizeSmall))
}

func TestSetPrices_RejectsInvalidInput(t *testing.T) {
	svc := newTestService(new(MockPriceRepository))

	_, err := svc.SetPrices(context.Background(), nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = svc.SetPrices(context.Background(), []model.PriceEntry{{ServiceType: "nails", PetSize: "small", Amount: 10}})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestInvalidate_ForcesReload(t *testing.T) {
	repo := new(MockPriceRepository)
	repo.On("List", mock.Anything).Return(model.DefaultPrices().Entries(), nil)
	svc := newTestService(repo)
	ctx := context.Background()

	svc.GetPrice(ctx, model.ServiceBath, model.PetSizeSmall)
	svc.Invalidate()
	svc.GetPrice(ctx, model.ServiceBath, model.PetSizeSmall)

	repo.AssertNumberOfCalls(t, "List", 2)
}

func TestReadersNeverSeeMixedTable(t *testing.T) {
	oldTable := model.DefaultPrices()
	newEntries := make([]model.PriceEntry, 0, len(oldTable))
	for _, e := range oldTable.Entries() {
		e.Amount += 1000
		newEntries = append(newEntries, e)
	}

	repo := new(MockPriceRepository)
	repo.On("List", mock.Anything).Return(oldTable.Entries(), nil)
	repo.On("ReplaceAll", mock.Anything, mock.Anything).Return(nil)
	svc := newTestService(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				table, err := svc.Table(ctx)
				if !assert.NoError(t, err) {
					return
				}
				small := table[model.PriceKey{ServiceType: model.ServiceBath, PetSize: model.PetSizeSmall}]
				large := table[model.PriceKey{ServiceType: model.ServiceBathAndCut, PetSize: model.PetSizeLarge}]
				// Both come from the same generation of the table.
				assert.Equal(t, small+2000, large)
			}
		}()
	}

	_, err := svc.SetPrices(ctx, newEntries)
	require.NoError(t, err)
	wg.Wait()
}
