// Command seed-db loads a catalog file into the database: brands, products,
// and per-size stock. The file may be plain JSON or gzip-compressed
// (detected by .gz suffix). Products are upserted concurrently per brand.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nordmarkt/storefront/internal/storage/postgres"
)

const (
	upsertBrandSQL = `INSERT INTO brands (id, name, owner_user_id, contact_email, gateway_account_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner_user_id = EXCLUDED.owner_user_id,
			contact_email = EXCLUDED.contact_email,
			gateway_account_id = EXCLUDED.gateway_account_id`

	upsertProductSQL = `INSERT INTO products (id, brand_id, name, price, currency, status, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			brand_id = EXCLUDED.brand_id,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			image = EXCLUDED.image`

	upsertStockSQL = `INSERT INTO product_size_stock (product_id, size, quantity, in_stock)
		VALUES ($1, $2, $3, $3 > 0)
		ON CONFLICT (product_id, size) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			in_stock = EXCLUDED.in_stock`
)

type catalogJSON struct {
	Brands   []brandJSON   `json:"brands"`
	Products []productJSON `json:"products"`
}

type brandJSON struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	OwnerUserID      string `json:"owner_user_id"`
	ContactEmail     string `json:"contact_email"`
	GatewayAccountID string `json:"gateway_account_id"`
}

type productJSON struct {
	ID       string          `json:"id"`
	BrandID  string          `json:"brand_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Image    string          `json:"image"`
	Sizes    []sizeJSON      `json:"sizes"`
}

type sizeJSON struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

func main() {
	var (
		databaseURL string
		catalogFile string
		workers     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file (.gz supported)")
	flag.IntVar(&workers, "workers", 4, "concurrent product upsert workers")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, workers); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string, workers int) error {
	catalog, err := readCatalog(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}

	slog.Info("catalog loaded",
		slog.Int("brands", len(catalog.Brands)),
		slog.Int("products", len(catalog.Products)),
	)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Brands first: products reference them.
	if err := seedBrands(ctx, pool, catalog.Brands); err != nil {
		return errors.Wrap(err, "seed brands")
	}

	if err := seedProducts(ctx, pool, catalog.Products, workers); err != nil {
		return errors.Wrap(err, "seed products")
	}

	return nil
}

// readCatalog reads and parses the catalog file, transparently decompressing
// gzip input.
func readCatalog(path string) (*catalogJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var catalog catalogJSON
	if err := json.NewDecoder(r).Decode(&catalog); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &catalog, nil
}

func seedBrands(ctx context.Context, pool *pgxpool.Pool, brands []brandJSON) error {
	slog.Info("upserting brands", slog.Int("count", len(brands)))

	for _, b := range brands {
		_, err := pool.Exec(ctx, upsertBrandSQL,
			b.ID, b.Name, b.OwnerUserID, b.ContactEmail, b.GatewayAccountID,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert brand %s", b.ID)
		}

		slog.Info("upserted brand", slog.String("id", b.ID), slog.String("name", b.Name))
	}

	return nil
}

// seedProducts upserts products and their size stock concurrently.
func seedProducts(ctx context.Context, pool *pgxpool.Pool, products []productJSON, workers int) error {
	slog.Info("upserting products", slog.Int("count", len(products)), slog.Int("workers", workers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, p := range products {
		g.Go(func() error {
			currency := p.Currency
			if currency == "" {
				currency = "EUR"
			}
			status := p.Status
			if status == "" {
				status = "approved"
			}

			_, err := pool.Exec(ctx, upsertProductSQL,
				p.ID, p.BrandID, p.Name, p.Price, currency, status, p.Image,
			)
			if err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}

			for _, s := range p.Sizes {
				if _, err := pool.Exec(ctx, upsertStockSQL, p.ID, s.Size, s.Quantity); err != nil {
					return errors.Wrapf(err, "upsert stock %s/%s", p.ID, s.Size)
				}
			}

			slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
			return nil
		})
	}

	return g.Wait()
}
