package store

import (
	"context"
	"fmt"

	"pos-checkout/internal/models"
)

// CreateSale inserts a sale header and fills in its ID and created_at
func (s *Store) CreateSale(ctx context.Context, sale *models.Sale) error {
	return insertSale(ctx, s.db, sale)
}

func insertSale(ctx context.Context, q execer, sale *models.Sale) error {
	query := `
		INSERT INTO sales (customer_id, user_id, invoice_number, sale_date, subtotal, discount_amount,
			tax_amount, total_amount, amount_paid, change_amount, payment_method, payment_status,
			sale_status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''))
		RETURNING id, created_at`

	err := q.GetContext(ctx, sale, query,
		sale.CustomerID, sale.UserID, sale.InvoiceNumber, sale.SaleDate, sale.Subtotal,
		sale.DiscountAmount, sale.TaxAmount, sale.TotalAmount, sale.AmountPaid, sale.ChangeAmount,
		string(sale.PaymentMethod), sale.PaymentStatus, sale.SaleStatus, sale.Notes)
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}
	return nil
}

// DeleteSale removes a sale header
func (s *Store) DeleteSale(ctx context.Context, saleID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sales WHERE id = $1", saleID)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	return nil
}

// CreateSaleItem inserts one sale line
func (s *Store) CreateSaleItem(ctx context.Context, item *models.SaleItem) error {
	return insertSaleItem(ctx, s.db, item)
}

func insertSaleItem(ctx context.Context, q execer, item *models.SaleItem) error {
	query := `
		INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, discount_amount, tax_amount, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := q.GetContext(ctx, &item.ID, query,
		item.SaleID, item.ProductID, item.Quantity, item.UnitPrice,
		item.DiscountAmount, item.TaxAmount, item.TotalPrice)
	if err != nil {
		return fmt.Errorf("failed to create sale item: %w", err)
	}
	return nil
}

// DeleteSaleItems removes every line of a sale
func (s *Store) DeleteSaleItems(ctx context.Context, saleID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sale_items WHERE sale_id = $1", saleID)
	if err != nil {
		return fmt.Errorf("failed to delete sale items: %w", err)
	}
	return nil
}

// CreateDebt inserts a debt record
func (s *Store) CreateDebt(ctx context.Context, debt *models.Debt) error {
	return insertDebt(ctx, s.db, debt)
}

func insertDebt(ctx context.Context, q execer, debt *models.Debt) error {
	query := `
		INSERT INTO debts (customer_id, sale_id, debt_type, amount, description, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := q.GetContext(ctx, debt, query,
		debt.CustomerID, debt.SaleID, debt.DebtType, debt.Amount,
		debt.Description, debt.Status, debt.DueDate)
	if err != nil {
		return fmt.Errorf("failed to create debt: %w", err)
	}
	return nil
}

// DeleteDebt removes a debt record
func (s *Store) DeleteDebt(ctx context.Context, debtID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM debts WHERE id = $1", debtID)
	if err != nil {
		return fmt.Errorf("failed to delete debt: %w", err)
	}
	return nil
}

// CommitSale writes the sale, its lines, the optional debt and the stock
// decrements in a single transaction. Stock is floored at zero. On failure
// nothing is written and the bundle's IDs are cleared.
func (s *Store) CommitSale(ctx context.Context, b *models.SaleBundle) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			clearIDs(b)
		}
	}()

	if err = insertSale(ctx, tx, b.Sale); err != nil {
		return err
	}
	for _, it := range b.Items {
		it.SaleID = b.Sale.ID
		if err = insertSaleItem(ctx, tx, it); err != nil {
			return err
		}
	}
	if b.Debt != nil {
		b.Debt.SaleID = b.Sale.ID
		b.Debt.Description = models.DebtDescription(b.Sale.ID)
		if err = insertDebt(ctx, tx, b.Debt); err != nil {
			return err
		}
	}
	for _, adj := range b.Stock {
		if err = decrementStock(ctx, tx, adj); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sale: %w", err)
	}
	return nil
}

func decrementStock(ctx context.Context, q execer, adj models.StockAdjustment) error {
	res, err := q.ExecContext(ctx,
		"UPDATE products SET stock_quantity = GREATEST(stock_quantity - $1, 0), updated_at = NOW() WHERE id = $2",
		adj.Quantity, adj.ProductID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", adj.ProductID, ErrNotFound)
	}
	return nil
}

func clearIDs(b *models.SaleBundle) {
	b.Sale.ID = ""
	for _, it := range b.Items {
		it.ID = ""
		it.SaleID = ""
	}
	if b.Debt != nil {
		b.Debt.ID = ""
		b.Debt.SaleID = ""
	}
}
