package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Product is a read-only projection of the POS products table.
type Product struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	Stock             int     `json:"stock"`
	LowStockThreshold int     `json:"low_stock_threshold"`
	StoreID           int64   `json:"store_id"`
	StoreName         string  `json:"store_name"`
}

var ErrProductNotFound = errors.New("product not found in catalog")

// Store reads product data from the POS database. The gateway never writes
// to these tables; the CRUD backend owns them.
type Store struct {
	db     *sql.DB
	driver string
}

func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgresql", "postgres", "pgx":
		return "pgx"
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}

func Open(driver string, dsn string) (*Store, error) {
	normalized := NormalizeDriver(driver)
	switch normalized {
	case "pgx", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported catalog driver %s", driver)
	}

	db, err := sql.Open(normalized, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, driver: normalized}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $n for the Postgres driver.
func (s *Store) rebind(query string) string {
	if s.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const productColumns = `p.id, p.name, p.price, p.stock, p.low_stock_threshold, p.store_id, COALESCE(st.name, '')`

func (s *Store) scanProducts(rows *sql.Rows) ([]Product, error) {
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.LowStockThreshold, &p.StoreID, &p.StoreName); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Products lists the full catalog ordered by name.
func (s *Store) Products(ctx context.Context) ([]Product, error) {
	query := s.rebind(`SELECT ` + productColumns + `
		FROM products p LEFT JOIN stores st ON st.id = p.store_id
		ORDER BY p.name`)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.scanProducts(rows)
}

// FindByName resolves a product by case-insensitive name match, preferring an
// exact match over a substring one.
func (s *Store) FindByName(ctx context.Context, name string) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrProductNotFound
	}

	query := s.rebind(`SELECT ` + productColumns + `
		FROM products p LEFT JOIN stores st ON st.id = p.store_id
		WHERE LOWER(p.name) = LOWER(?)
		LIMIT 1`)
	row := s.db.QueryRowContext(ctx, query, name)
	p, err := scanProduct(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	query = s.rebind(`SELECT ` + productColumns + `
		FROM products p LEFT JOIN stores st ON st.id = p.store_id
		WHERE LOWER(p.name) LIKE LOWER(?)
		ORDER BY p.name LIMIT 1`)
	row = s.db.QueryRowContext(ctx, query, "%"+name+"%")
	p, err = scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LowStock lists products at or below their configured threshold.
func (s *Store) LowStock(ctx context.Context) ([]Product, error) {
	query := s.rebind(`SELECT ` + productColumns + `
		FROM products p LEFT JOIN stores st ON st.id = p.store_id
		WHERE p.stock <= p.low_stock_threshold
		ORDER BY p.stock`)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.scanProducts(rows)
}

func scanProduct(row *sql.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.LowStockThreshold, &p.StoreID, &p.StoreName)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
