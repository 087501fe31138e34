package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"pos-checkout/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func TestGetProducts(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "sku", "barcode", "name", "selling_price", "stock_quantity", "updated_at"}).
		AddRow("p1", "RICE-1", "6001", "Rice 1kg", "15.00", 10, now).
		AddRow("p2", "SUG-1", "", "Sugar", "5.50", 0, now)
	mock.ExpectQuery(q("FROM products WHERE is_active = TRUE ORDER BY name")).WillReturnRows(rows)

	products, err := s.GetProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Rice 1kg", products[0].Name)
	assert.True(t, products[1].SellingPrice.Equal(decimal.RequireFromString("5.5")))
	assert.Equal(t, 10, products[0].StockQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("FROM products WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetProductByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetProductStock(t *testing.T) {
	ctx := context.Background()
	update := q("UPDATE products SET stock_quantity = $1, updated_at = NOW() WHERE id = $2 AND stock_quantity = $3")
	exists := q("SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)")

	t.Run("applied", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(update).WithArgs(7, "p1", 10).WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, s.SetProductStock(ctx, "p1", 10, 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(update).WithArgs(7, "p1", 10).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(exists).WithArgs("p1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		assert.ErrorIs(t, s.SetProductStock(ctx, "p1", 10, 7), ErrStockConflict)
	})

	t.Run("missing product", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(update).WithArgs(7, "px", 10).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(exists).WithArgs("px").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		assert.ErrorIs(t, s.SetProductStock(ctx, "px", 10, 7), ErrNotFound)
	})
}

func TestCreateCustomer(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(q("INSERT INTO customers")).
		WithArgs("Amina", "Juma", "amina@example.com", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "phone", "address", "loyalty_points", "is_active", "created_at"}).
			AddRow("c1", "Amina", "Juma", "amina@example.com", "", "", 0, true, now))

	c, err := s.CreateCustomer(context.Background(), models.NewCustomer{FirstName: "Amina", LastName: "Juma", Email: "amina@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Zero(t, c.LoyaltyPoints)
	assert.True(t, c.IsActive)
}

func TestGetStaffRole(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("FROM staff WHERE id = $1 AND is_active = TRUE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "role", "is_active", "created_at"}).
			AddRow("u1", "cashier@example.com", "Cashier One", "salesman", true, time.Now()))
	mock.ExpectQuery(q("FROM staff WHERE id = $1 AND is_active = TRUE")).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	role, err := s.GetStaffRole(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "salesman", role)

	_, err = s.GetStaffRole(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func saleBundle() *models.SaleBundle {
	customer := "c1"
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	return &models.SaleBundle{
		Sale: &models.Sale{
			CustomerID:    &customer,
			UserID:        "u1",
			InvoiceNumber: models.InvoiceNumber(now),
			SaleDate:      now,
			Subtotal:      decimal.NewFromInt(30),
			TotalAmount:   decimal.NewFromInt(30),
			PaymentMethod: models.PaymentDebt,
			PaymentStatus: models.PaymentStatusUnpaid,
			SaleStatus:    models.SaleStatusCompleted,
		},
		Items: []*models.SaleItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(15), TotalPrice: decimal.NewFromInt(30)},
		},
		Debt: &models.Debt{
			CustomerID: "c1",
			DebtType:   models.DebtTypeCustomer,
			Amount:     decimal.NewFromInt(30),
			Status:     models.DebtStatusOutstanding,
			DueDate:    now.AddDate(0, 0, 30),
		},
		Stock: []models.StockAdjustment{{ProductID: "p1", Quantity: 2}},
	}
}

func TestCommitSale(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO sales")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("s1", now))
	mock.ExpectQuery(q("INSERT INTO sale_items")).
		WithArgs("s1", "p1", 2, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("i1"))
	mock.ExpectQuery(q("INSERT INTO debts")).
		WithArgs("c1", "s1", models.DebtTypeCustomer, sqlmock.AnyArg(), "Debt for sale s1", models.DebtStatusOutstanding, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("d1", now))
	mock.ExpectExec(q("GREATEST(stock_quantity - $1, 0)")).
		WithArgs(2, "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b := saleBundle()
	require.NoError(t, s.CommitSale(context.Background(), b))
	assert.Equal(t, "s1", b.Sale.ID)
	assert.Equal(t, "i1", b.Items[0].ID)
	assert.Equal(t, "d1", b.Debt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSaleRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO sales")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("s1", now))
	mock.ExpectQuery(q("INSERT INTO sale_items")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("i1"))
	mock.ExpectQuery(q("INSERT INTO debts")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("d1", now))
	mock.ExpectExec(q("GREATEST(stock_quantity - $1, 0)")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	b := saleBundle()
	err := s.CommitSale(context.Background(), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decrement stock")
	assert.Empty(t, b.Sale.ID)
	assert.Empty(t, b.Items[0].ID)
	assert.Empty(t, b.Debt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAwardLoyaltyPoints(t *testing.T) {
	ctx := context.Background()
	insert := q("INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING")

	t.Run("first delivery credits points", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(insert).WithArgs("e1", models.EventTypeSaleCompleted).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("UPDATE customers SET loyalty_points = loyalty_points + $1 WHERE id = $2")).
			WithArgs(int64(3), "c1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		applied, err := s.AwardLoyaltyPoints(ctx, "e1", models.EventTypeSaleCompleted, "c1", 3)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redelivery is ignored", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(insert).WithArgs("e1", models.EventTypeSaleCompleted).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		applied, err := s.AwardLoyaltyPoints(ctx, "e1", models.EventTypeSaleCompleted, "c1", 3)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsEventProcessed(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)")).
		WithArgs("e9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	done, err := s.IsEventProcessed(context.Background(), "e9")
	require.NoError(t, err)
	assert.True(t, done)
}
