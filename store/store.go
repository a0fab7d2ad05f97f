// Package store is the Postgres CRM layer. It is optional at runtime: when
// no DSN is configured the process runs on filesystem state alone, and
// order records fall back to local JSON files.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bluemele/SurfaBabe/knowledge"
	"github.com/bluemele/SurfaBabe/orders"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("store: empty dsn")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Customer is a CRM customer row.
type Customer struct {
	ID    int64
	Phone string
	Name  string
}

// PhoneFromChatID reduces a chat identifier to a bare phone number. Group
// and non-numeric identifiers come back unchanged minus the server suffix.
func PhoneFromChatID(chatID string) string {
	phone, _, _ := strings.Cut(chatID, "@")
	return phone
}

// UpsertCustomer inserts or refreshes a customer keyed by phone. Empty
// name and language never overwrite known values.
func (s *Store) UpsertCustomer(ctx context.Context, phone, name, language string) (Customer, error) {
	var c Customer
	var dbName *string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO customers (phone, name, language)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		 ON CONFLICT (phone) DO UPDATE SET
		   name = COALESCE(NULLIF($2, ''), customers.name),
		   language = COALESCE(NULLIF($3, ''), customers.language),
		   updated_at = NOW()
		 RETURNING id, phone, name`,
		phone, name, language,
	).Scan(&c.ID, &c.Phone, &dbName)
	if err != nil {
		return Customer{}, fmt.Errorf("store: upsert customer: %w", err)
	}
	if dbName != nil {
		c.Name = *dbName
	}
	return c, nil
}

// SeedProducts mirrors the catalog into the products table, leaving
// existing rows alone.
func (s *Store) SeedProducts(ctx context.Context, products []knowledge.Product) error {
	for _, p := range products {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO products (id, name, category, price, description, active)
			 VALUES ($1, $2, $3, $4, $5, TRUE)
			 ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Name, p.Category, p.Price, p.Description)
		if err != nil {
			return fmt.Errorf("store: seed product %d: %w", p.ID, err)
		}
	}
	return nil
}

// RecordOrder writes a confirmed order, its line items, and a pending
// payment in one transaction. The order number is the idempotency key, so
// redelivered records are silently absorbed.
func (s *Store) RecordOrder(ctx context.Context, rec orders.Record) error {
	phone := PhoneFromChatID(rec.ChatID)
	customer, err := s.UpsertCustomer(ctx, phone, rec.CustomerName, "")
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	total := rec.Total()
	var orderID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (order_number, customer_id, status, subtotal, total, delivery_address, payment_method)
		 VALUES ($1, $2, 'confirmed', $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		 ON CONFLICT (order_number) DO NOTHING
		 RETURNING id`,
		rec.OrderID, customer.ID, total, total, rec.Address, rec.PaymentMethod,
	).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		slog.Info("order_already_recorded", "order_id", rec.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: insert order: %w", err)
	}

	for _, item := range rec.Items {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			orderID, item.ProductID, item.Name, item.Quantity, item.Price, item.Price*float64(item.Quantity))
		if err != nil {
			return fmt.Errorf("store: insert order item: %w", err)
		}
	}

	if rec.PaymentMethod != "" {
		_, err := tx.Exec(ctx,
			`INSERT INTO payments (order_id, amount, method, status) VALUES ($1, $2, $3, 'pending')`,
			orderID, total, rec.PaymentMethod)
		if err != nil {
			return fmt.Errorf("store: insert payment: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// LogInteraction appends a CRM interaction row. Failures are the caller's
// to ignore; interaction logging never gates message handling.
func (s *Store) LogInteraction(ctx context.Context, phone, kind, summary string, metadata map[string]any) error {
	customer, err := s.UpsertCustomer(ctx, phone, "", "")
	if err != nil {
		return err
	}
	var meta []byte
	if metadata != nil {
		meta, _ = json.Marshal(metadata)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO crm_interactions (customer_id, type, summary, metadata) VALUES ($1, $2, NULLIF($3, ''), $4)`,
		customer.ID, kind, summary, meta)
	if err != nil {
		return fmt.Errorf("store: log interaction: %w", err)
	}
	return nil
}

// OrderSummary is one row of the admin order listing.
type OrderSummary struct {
	OrderNumber   string
	Status        string
	Total         float64
	CustomerPhone string
	CreatedAt     time.Time
}

// RecentOrders lists the latest orders for admin commands.
func (s *Store) RecentOrders(ctx context.Context, limit int) ([]OrderSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT o.order_number, o.status, o.total, COALESCE(c.phone, ''), o.created_at
		 FROM orders o LEFT JOIN customers c ON c.id = o.customer_id
		 ORDER BY o.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent orders: %w", err)
	}
	defer rows.Close()

	var out []OrderSummary
	for rows.Next() {
		var o OrderSummary
		if err := rows.Scan(&o.OrderNumber, &o.Status, &o.Total, &o.CustomerPhone, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
