package postgres

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/repository"
)

type priceRepository struct {
	BaseRepository
}

func NewPriceRepository(db *sqlx.DB) repository.PriceRepository {
	return &priceRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *priceRepository) List(ctx context.Context) ([]model.PriceEntry, error) {
	query := `
		SELECT service_type, pet_size, amount
		FROM service_prices
		ORDER BY service_type, pet_size
	`
	entries := make([]model.PriceEntry, 0)
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	return entries, nil
}

func (r *priceRepository) ReplaceAll(ctx context.Context, entries []model.PriceEntry) error {
	rows := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, goqu.Record{
			"service_type": string(e.ServiceType),
			"pet_size":     string(e.PetSize),
			"amount":       e.Amount,
		})
	}

	var insert string
	var args []interface{}
	if len(rows) > 0 {
		var err error
		insert, args, err = dialect.Insert("service_prices").Prepared(true).Rows(rows...).ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build price insert: %w", err)
		}
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM service_prices`); err != nil {
			return fmt.Errorf("failed to clear prices: %w", err)
		}
		if insert == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("failed to insert prices: %w", err)
		}
		return nil
	})
}
