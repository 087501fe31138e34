package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pos-checkout/internal/access"
	"pos-checkout/internal/cart"
	"pos-checkout/internal/currency"
	"pos-checkout/internal/models"
	"pos-checkout/internal/pricing"
	"pos-checkout/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Transaction is the immutable record of a committed sale, used for receipts
type Transaction struct {
	ID             string               `json:"id"`
	InvoiceNumber  string               `json:"invoice_number"`
	Timestamp      time.Time            `json:"timestamp"`
	Items          []cart.LineItem      `json:"items"`
	Subtotal       decimal.Decimal      `json:"subtotal"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	DisplayTax     decimal.Decimal      `json:"display_tax"`
	PayableTotal   decimal.Decimal      `json:"payable_total"`
	PaymentMethod  models.PaymentMethod `json:"payment_method"`
	AmountTendered decimal.Decimal      `json:"amount_tendered"`
	Change         decimal.Decimal      `json:"change"`
	Customer       *models.Customer     `json:"customer,omitempty"`
	LoyaltyPoints  int64                `json:"loyalty_points"`
}

// Commit validates payment and persists the sale. Validation failures and
// persistence failures leave the session awaiting payment so the cashier can
// correct input and retry.
func (o *Orchestrator) Commit(ctx context.Context, intent PaymentIntent) (*Transaction, error) {
	if o.state != StateAwaitingPayment {
		return nil, o.fail(fmt.Errorf("%w: %s", ErrInvalidTransition, o.state))
	}

	totals := o.Totals()
	if err := o.validate(intent, totals); err != nil {
		o.logger.Info("Checkout rejected",
			zap.String("user_id", o.session.UserID),
			zap.String("reason", FailureCode(err)))
		util.CheckoutRejectionsTotal.WithLabelValues(FailureCode(err)).Inc()
		return nil, o.fail(err)
	}

	ctx, span := util.StartSpan(ctx, "Checkout.Commit",
		attribute.String("payment.method", string(intent.Method)),
		attribute.String("user.id", o.session.UserID))
	defer span.End()

	o.state = StateCommitting

	commitCtx := ctx
	if o.cfg.CommitTimeout > 0 {
		var cancel context.CancelFunc
		commitCtx, cancel = context.WithTimeout(ctx, o.cfg.CommitTimeout)
		defer cancel()
	}

	bundle := o.buildBundle(intent, totals)

	if err := o.persist(commitCtx, bundle); err != nil {
		util.RecordError(span, err)
		o.state = StateAwaitingPayment
		o.publishCompensated(ctx, bundle, err)
		return nil, o.fail(err)
	}

	o.refreshCatalog(commitCtx)

	tx := o.transaction(bundle, intent, totals)
	o.cart.Clear()
	o.discount = pricing.NoDiscount()
	o.customer = nil
	o.lastTx = tx
	o.lastFailure = nil
	o.state = StateComplete

	util.SalesCommittedTotal.WithLabelValues(string(intent.Method)).Inc()
	o.logger.With(util.TraceFields(ctx)...).Info("Sale committed",
		zap.String("sale_id", tx.ID),
		zap.String("invoice", tx.InvoiceNumber),
		zap.String("method", string(tx.PaymentMethod)),
		zap.String("total", currency.Format(tx.PayableTotal)))

	o.publishCompleted(ctx, tx)
	return tx, nil
}

func (o *Orchestrator) validate(intent PaymentIntent, totals pricing.Totals) error {
	if !intent.Method.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, intent.Method)
	}
	if o.cart.IsEmpty() {
		return ErrEmptyCart
	}
	if intent.Method == models.PaymentDebt && o.customer == nil {
		return ErrCustomerRequired
	}
	if intent.Method == models.PaymentCash &&
		currency.Change(intent.AmountTendered, totals.PayableTotal).IsNegative() {
		return ErrInsufficientPayment
	}
	if !access.CanCreateSales(o.session.Role) {
		return ErrPermissionDenied
	}
	return nil
}

// settlement returns amount paid and change for a payment method. Card and
// mobile money record the amount received when one is entered, else the total.
func settlement(intent PaymentIntent, payable decimal.Decimal) (paid, change decimal.Decimal) {
	switch intent.Method {
	case models.PaymentCash:
		return intent.AmountTendered, currency.Change(intent.AmountTendered, payable)
	case models.PaymentDebt:
		return decimal.Zero, decimal.Zero
	default:
		if intent.AmountTendered.IsPositive() {
			return intent.AmountTendered, decimal.Zero
		}
		return payable, decimal.Zero
	}
}

func (o *Orchestrator) buildBundle(intent PaymentIntent, totals pricing.Totals) *models.SaleBundle {
	now := o.now()
	paid, change := settlement(intent, totals.PayableTotal)

	sale := &models.Sale{
		UserID:         o.session.UserID,
		InvoiceNumber:  models.InvoiceNumber(now),
		SaleDate:       now,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.DisplayTax,
		TotalAmount:    totals.PayableTotal,
		AmountPaid:     paid,
		ChangeAmount:   change,
		PaymentMethod:  intent.Method,
		PaymentStatus:  models.PaymentStatusPaid,
		SaleStatus:     models.SaleStatusCompleted,
	}
	if o.customer != nil {
		id := o.customer.ID
		sale.CustomerID = &id
	}

	bundle := &models.SaleBundle{Sale: sale}
	for _, it := range o.cart.Billable() {
		bundle.Items = append(bundle.Items, &models.SaleItem{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			DiscountAmount: decimal.Zero,
			TaxAmount:      o.engine.LineTax(it),
			TotalPrice:     currency.LineTotal(it.UnitPrice, it.Quantity),
		})
		bundle.Stock = append(bundle.Stock, models.StockAdjustment{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}

	if intent.Method == models.PaymentDebt {
		sale.PaymentStatus = models.PaymentStatusUnpaid
		sale.Notes = "Debt transaction - payment pending"
		due := now.AddDate(0, 0, o.cfg.DebtDueDays)
		bundle.Debt = &models.Debt{
			CustomerID: o.customer.ID,
			DebtType:   models.DebtTypeCustomer,
			Amount:     totals.PayableTotal,
			Status:     models.DebtStatusOutstanding,
			DueDate:    time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, due.Location()),
		}
	}
	return bundle
}

func (o *Orchestrator) persist(ctx context.Context, bundle *models.SaleBundle) error {
	if ac, ok := o.backend.(AtomicCommitter); ok && o.cfg.AtomicCommit {
		start := time.Now()
		err := ac.CommitSale(ctx, bundle)
		util.SagaStepLatency.WithLabelValues(StepAtomic).Observe(time.Since(start).Seconds())
		if err != nil {
			o.logger.With(util.TraceFields(ctx)...).Error("Atomic sale commit failed", zap.Error(err))
			util.CheckoutFailuresTotal.WithLabelValues(StepAtomic).Inc()
			return &PersistenceFailure{Step: StepAtomic, Err: err, Compensated: true}
		}
		return nil
	}

	s := &saga{steps: o.commitSteps(bundle), logger: o.logger.With(util.TraceFields(ctx)...)}
	return s.execute(ctx)
}

type appliedStock struct {
	productID string
	from, to  int
}

func (o *Orchestrator) commitSteps(bundle *models.SaleBundle) []sagaStep {
	var itemsCreated int
	var applied []appliedStock

	steps := []sagaStep{
		{
			name: StepSale,
			run: func(ctx context.Context) error {
				if err := o.backend.CreateSale(ctx, bundle.Sale); err != nil {
					bundle.Sale.ID = ""
					return err
				}
				for _, it := range bundle.Items {
					it.SaleID = bundle.Sale.ID
				}
				if bundle.Debt != nil {
					bundle.Debt.SaleID = bundle.Sale.ID
					bundle.Debt.Description = models.DebtDescription(bundle.Sale.ID)
				}
				return nil
			},
			compensate: func(ctx context.Context) error {
				if bundle.Sale.ID == "" {
					return nil
				}
				return o.backend.DeleteSale(ctx, bundle.Sale.ID)
			},
		},
		{
			name: StepSaleItems,
			run: func(ctx context.Context) error {
				for _, it := range bundle.Items {
					if err := o.backend.CreateSaleItem(ctx, it); err != nil {
						return fmt.Errorf("product %s: %w", it.ProductID, err)
					}
					itemsCreated++
				}
				return nil
			},
			compensate: func(ctx context.Context) error {
				if itemsCreated == 0 {
					return nil
				}
				return o.backend.DeleteSaleItems(ctx, bundle.Sale.ID)
			},
		},
	}

	if bundle.Debt != nil {
		steps = append(steps, sagaStep{
			name: StepDebt,
			run: func(ctx context.Context) error {
				if err := o.backend.CreateDebt(ctx, bundle.Debt); err != nil {
					bundle.Debt.ID = ""
					return err
				}
				return nil
			},
			compensate: func(ctx context.Context) error {
				if bundle.Debt.ID == "" {
					return nil
				}
				return o.backend.DeleteDebt(ctx, bundle.Debt.ID)
			},
		})
	}

	steps = append(steps, sagaStep{
		name: StepStock,
		run: func(ctx context.Context) error {
			for _, adj := range bundle.Stock {
				from, to, err := o.decrementStock(ctx, adj)
				if err != nil {
					return fmt.Errorf("product %s: %w", adj.ProductID, err)
				}
				applied = append(applied, appliedStock{productID: adj.ProductID, from: from, to: to})
			}
			return nil
		},
		compensate: func(ctx context.Context) error {
			var errs []error
			for i := len(applied) - 1; i >= 0; i-- {
				if err := o.restoreStock(ctx, applied[i]); err != nil {
					errs = append(errs, fmt.Errorf("product %s: %w", applied[i].productID, err))
				}
			}
			return errors.Join(errs...)
		},
	})

	return steps
}

// decrementStock sets stock to max(0, previous-quantity) with compare-and-set,
// re-reading the product when another writer got there first.
func (o *Orchestrator) decrementStock(ctx context.Context, adj models.StockAdjustment) (int, int, error) {
	prev, ok := o.snapshotStock(adj.ProductID)
	if !ok {
		p, err := o.backend.GetProduct(ctx, adj.ProductID)
		if err != nil {
			return 0, 0, err
		}
		prev = p.StockQuantity
	}

	for attempt := 1; ; attempt++ {
		next := prev - adj.Quantity
		if next < 0 {
			next = 0
		}
		err := o.backend.SetProductStock(ctx, adj.ProductID, prev, next)
		if err == nil {
			return prev, next, nil
		}
		if !errors.Is(err, ErrStockConflict) || attempt >= o.cfg.StockRetries {
			return 0, 0, err
		}

		util.StockConflictsTotal.Inc()
		o.logger.Warn("Stock changed concurrently, retrying",
			zap.String("product_id", adj.ProductID),
			zap.Int("expected", prev),
			zap.Int("attempt", attempt))

		p, err := o.backend.GetProduct(ctx, adj.ProductID)
		if err != nil {
			return 0, 0, err
		}
		prev = p.StockQuantity
	}
}

// restoreStock adds back what decrementStock took
func (o *Orchestrator) restoreStock(ctx context.Context, a appliedStock) error {
	delta := a.from - a.to
	if delta == 0 {
		return nil
	}
	current := a.to
	for attempt := 1; ; attempt++ {
		err := o.backend.SetProductStock(ctx, a.productID, current, current+delta)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrStockConflict) || attempt >= o.cfg.StockRetries {
			return err
		}
		util.StockConflictsTotal.Inc()
		p, err := o.backend.GetProduct(ctx, a.productID)
		if err != nil {
			return err
		}
		current = p.StockQuantity
	}
}

func (o *Orchestrator) snapshotStock(productID string) (int, bool) {
	p, ok := o.product(productID)
	if !ok {
		return 0, false
	}
	return p.StockQuantity, true
}

// refreshCatalog reloads the product snapshot. The sale is already durable,
// so a failure only marks the snapshot stale.
func (o *Orchestrator) refreshCatalog(ctx context.Context) {
	ctx, span := util.StartSpan(ctx, "Checkout.RefreshCatalog")
	defer span.End()

	products, err := o.backend.FetchProducts(ctx)
	if err != nil {
		util.RecordError(span, err)
		o.catalogStale = true
		o.logger.Warn("Failed to refresh catalog after sale", zap.Error(err))
		return
	}
	o.products = products
	o.catalogStale = false
}

func (o *Orchestrator) transaction(bundle *models.SaleBundle, intent PaymentIntent, totals pricing.Totals) *Transaction {
	tx := &Transaction{
		ID:             bundle.Sale.ID,
		InvoiceNumber:  bundle.Sale.InvoiceNumber,
		Timestamp:      bundle.Sale.SaleDate,
		Items:          o.cart.Billable(),
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		DisplayTax:     totals.DisplayTax,
		PayableTotal:   totals.PayableTotal,
		PaymentMethod:  intent.Method,
		AmountTendered: bundle.Sale.AmountPaid,
		Change:         bundle.Sale.ChangeAmount,
	}
	if o.customer != nil {
		c := *o.customer
		tx.Customer = &c
		tx.LoyaltyPoints = currency.Points(totals.PayableTotal, o.cfg.LoyaltyPointsRate)
	}
	return tx
}

func (o *Orchestrator) publishCompleted(ctx context.Context, tx *Transaction) {
	if o.events == nil {
		return
	}
	event := &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCompleted,
			Timestamp: o.now(),
		},
		SaleID:        tx.ID,
		InvoiceNumber: tx.InvoiceNumber,
		UserID:        o.session.UserID,
		PaymentMethod: tx.PaymentMethod,
		TotalAmount:   tx.PayableTotal,
		LoyaltyPoints: tx.LoyaltyPoints,
	}
	if tx.Customer != nil {
		event.CustomerID = tx.Customer.ID
	}
	for _, it := range tx.Items {
		event.Items = append(event.Items, models.SaleItemData{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	if err := o.events.PublishSaleCompleted(ctx, event); err != nil {
		o.logger.Error("Failed to publish SaleCompleted event",
			zap.String("sale_id", tx.ID),
			zap.Error(err))
	}
}

func (o *Orchestrator) publishCompensated(ctx context.Context, bundle *models.SaleBundle, cause error) {
	if o.events == nil {
		return
	}
	event := &models.SaleCompensatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCompensated,
			Timestamp: o.now(),
		},
		SaleID: bundle.Sale.ID,
		UserID: o.session.UserID,
		Reason: cause.Error(),
	}
	var pf *PersistenceFailure
	if errors.As(cause, &pf) {
		event.FailedStep = pf.Step
		event.Compensated = pf.Compensated
	}
	if err := o.events.PublishSaleCompensated(ctx, event); err != nil {
		o.logger.Error("Failed to publish SaleCompensated event", zap.Error(err))
	}
}
