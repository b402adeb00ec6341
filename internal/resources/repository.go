package resources

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads bins and products. It never writes.
type Repository interface {
	ListBins(ctx context.Context) ([]Bin, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListBins(ctx context.Context) ([]Bin, error) {
	const query = `SELECT id::text, name,
		COALESCE(length, 0)::text, COALESCE(width, 0)::text, COALESCE(height, 0)::text
		FROM bins ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("resources: list bins: %w", err)
	}
	defer rows.Close()

	var bins []Bin
	for rows.Next() {
		var b Bin
		var length, width, height string
		if err := rows.Scan(&b.ID, &b.Name, &length, &width, &height); err != nil {
			return nil, err
		}
		b.Length = parseDimension(length)
		b.Width = parseDimension(width)
		b.Height = parseDimension(height)
		bins = append(bins, b)
	}
	return bins, rows.Err()
}

func (r *repository) ListProducts(ctx context.Context) ([]Product, error) {
	const query = `SELECT id::text, sku, name FROM products WHERE sku <> '' ORDER BY sku ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("resources: list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func parseDimension(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
