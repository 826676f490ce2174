package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/repository"
	"github.com/lessslie/Pelu-PetShop/pkg/errors"
	"github.com/lessslie/Pelu-PetShop/pkg/logger"
	"github.com/lessslie/Pelu-PetShop/pkg/metrics"
)

const tableKey = "price_table"

type Service interface {
	// GetPrice returns 0 when the pair is not priced or the table cannot be
	// loaded. It never fails.
	GetPrice(ctx context.Context, serviceType model.ServiceType, size model.PetSize) float64
	Table(ctx context.Context) (model.PriceTable, error)
	// SetPrices replaces the whole table. Readers see the old table or the
	// new one, never a mix.
	SetPrices(ctx context.Context, entries []model.PriceEntry) (model.PriceTable, error)
	Invalidate()
}

type service struct {
	repo    repository.PriceRepository
	cache   *cache.Cache
	ttl     time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	generation uint64
}

func NewService(repo repository.PriceRepository, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) Service {
	return &service{
		repo:    repo,
		cache:   cache.New(ttl, 2*ttl),
		ttl:     ttl,
		log:     log.Component("pricing"),
		metrics: m,
	}
}

func (s *service) GetPrice(ctx context.Context, serviceType model.ServiceType, size model.PetSize) float64 {
	table, err := s.Table(ctx)
	if err != nil {
		s.log.Error(err, "Price table unavailable, treating as unpriced",
			"service_type", serviceType, "pet_size", size)
		return 0
	}
	return table[model.PriceKey{ServiceType: serviceType, PetSize: size}]
}

func (s *service) Table(ctx context.Context) (model.PriceTable, error) {
	if cached, ok := s.cache.Get(tableKey); ok {
		s.metrics.PriceCacheLookups.WithLabelValues("hit").Inc()
		return cached.(model.PriceTable), nil
	}
	s.metrics.PriceCacheLookups.WithLabelValues("miss").Inc()

	s.mu.Lock()
	generation := s.generation
	s.mu.Unlock()

	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.NewDependency("failed to load price table", err)
	}
	table := model.NewPriceTable(entries)

	// A SetPrices that ran while we were reading wins.
	s.mu.Lock()
	if s.generation == generation {
		s.cache.Set(tableKey, table, cache.DefaultExpiration)
	}
	s.mu.Unlock()

	return table, nil
}

func (s *service) SetPrices(ctx context.Context, entries []model.PriceEntry) (model.PriceTable, error) {
	normalized, err := model.NormalizePriceEntries(entries)
	if err != nil {
		return nil, errors.NewBadRequest(err.Error(), err)
	}
	if len(normalized) == 0 {
		return nil, errors.NewBadRequest("price table cannot be empty", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.ReplaceAll(ctx, normalized); err != nil {
		return nil, errors.NewDependency("failed to store price table", err)
	}

	table := model.NewPriceTable(normalized)
	s.generation++
	s.cache.Set(tableKey, table, cache.DefaultExpiration)

	s.log.Info("Price table replaced", "entries", len(table))
	return table, nil
}

func (s *service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cache.Delete(tableKey)
}
