package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pos-checkout/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrStockConflict = errors.New("stock quantity changed since it was read")
)

// execer is satisfied by both *sqlx.DB and *sqlx.Tx
type execer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// New wraps an existing connection
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const productColumns = `id, sku, COALESCE(barcode, '') AS barcode, name, selling_price, stock_quantity, updated_at`

// GetProducts retrieves all active products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE is_active = TRUE ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return products, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// SetProductStock writes quantity only if the stored stock still equals
// expected. ErrStockConflict means another writer changed it first.
func (s *Store) SetProductStock(ctx context.Context, id string, expected, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock_quantity = $1, updated_at = NOW() WHERE id = $2 AND stock_quantity = $3",
		quantity, id, expected)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", id); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return ErrStockConflict
}

const customerColumns = `id, first_name, last_name, COALESCE(email, '') AS email, COALESCE(phone, '') AS phone,
	COALESCE(address, '') AS address, loyalty_points, is_active, created_at`

// GetCustomers retrieves active customers ordered by name
func (s *Store) GetCustomers(ctx context.Context) ([]models.Customer, error) {
	customers := []models.Customer{}
	err := s.db.SelectContext(ctx, &customers,
		"SELECT "+customerColumns+" FROM customers WHERE is_active = TRUE ORDER BY first_name, last_name")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch customers: %w", err)
	}
	return customers, nil
}

// CreateCustomer inserts an active customer with zero loyalty points
func (s *Store) CreateCustomer(ctx context.Context, c models.NewCustomer) (*models.Customer, error) {
	query := `
		INSERT INTO customers (first_name, last_name, email, phone, address, loyalty_points, is_active)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), 0, TRUE)
		RETURNING ` + customerColumns

	var customer models.Customer
	if err := s.db.GetContext(ctx, &customer, query,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Address); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return &customer, nil
}

func addLoyaltyPoints(ctx context.Context, q execer, customerID string, points int64) error {
	res, err := q.ExecContext(ctx,
		"UPDATE customers SET loyalty_points = loyalty_points + $1 WHERE id = $2",
		points, customerID)
	if err != nil {
		return fmt.Errorf("failed to add loyalty points: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	return nil
}

// GetStaffMember retrieves an active staff member
func (s *Store) GetStaffMember(ctx context.Context, id string) (*models.StaffMember, error) {
	var m models.StaffMember
	err := s.db.GetContext(ctx, &m,
		"SELECT id, email, full_name, role, is_active, created_at FROM staff WHERE id = $1 AND is_active = TRUE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("staff %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetStaffRole returns the role name of an active staff member
func (s *Store) GetStaffRole(ctx context.Context, id string) (string, error) {
	m, err := s.GetStaffMember(ctx, id)
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := markEventProcessed(ctx, s.db, eventID, eventType)
	return err
}

func markEventProcessed(ctx context.Context, q execer, eventID, eventType string) (bool, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AwardLoyaltyPoints credits points and records the event in one
// transaction. It returns false when the event was already applied.
func (s *Store) AwardLoyaltyPoints(ctx context.Context, eventID, eventType, customerID string, points int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, err := markEventProcessed(ctx, tx, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to record event: %w", err)
	}
	if !inserted {
		return false, nil
	}
	if err := addLoyaltyPoints(ctx, tx, customerID, points); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit loyalty award: %w", err)
	}
	return true, nil
}
