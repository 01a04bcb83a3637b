package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nordmarkt/storefront/internal/domain/catalog"
)

const (
	listProductsSQL = `SELECT p.id, p.brand_id, b.name, p.name, p.price, p.currency, p.status, p.image
		FROM products p JOIN brands b ON b.id = p.brand_id
		ORDER BY p.id`

	getProductByIDSQL = `SELECT p.id, p.brand_id, b.name, p.name, p.price, p.currency, p.status, p.image
		FROM products p JOIN brands b ON b.id = p.brand_id
		WHERE p.id = $1`

	getProductsByIDsSQL = `SELECT p.id, p.brand_id, b.name, p.name, p.price, p.currency, p.status, p.image
		FROM products p JOIN brands b ON b.id = p.brand_id
		WHERE p.id = ANY($1)`

	getSizesByProductIDsSQL = `SELECT product_id, size, quantity, in_stock
		FROM product_size_stock WHERE product_id = ANY($1) ORDER BY product_id, size`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	if err := r.attachSizes(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	products := []catalog.Product{p}
	if err := r.attachSizes(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// GetByIDs returns products matching any of the given IDs, with their size
// stock attached.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	if err := r.attachSizes(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *ProductRepository) attachSizes(ctx context.Context, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, len(products))
	byID := make(map[string]*catalog.Product, len(products))
	for i := range products {
		ids[i] = products[i].ID
		byID[products[i].ID] = &products[i]
	}

	rows, err := r.pool.Query(ctx, getSizesByProductIDsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "getting product sizes")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID string
			size      catalog.SizeStock
		)
		if err := rows.Scan(&productID, &size.Size, &size.Quantity, &size.InStock); err != nil {
			return errors.Wrap(err, "scanning product size")
		}
		if p, ok := byID[productID]; ok {
			p.Sizes = append(p.Sizes, size)
		}
	}
	return errors.Wrap(rows.Err(), "getting product sizes")
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p     catalog.Product
		price decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.BrandID, &p.BrandName, &p.Name, &price, &p.Currency, &p.Status, &p.Image,
	)
	p.Price = price
	return p, err
}
