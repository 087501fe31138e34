package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pos-checkout/internal/access"
	"pos-checkout/internal/cart"
	"pos-checkout/internal/currency"
	"pos-checkout/internal/models"
	"pos-checkout/internal/pricing"
	"pos-checkout/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// State of a checkout session
type State int

const (
	StateIdle State = iota
	StateAwaitingPayment
	StateCommitting
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPayment:
		return "awaiting_payment"
	case StateCommitting:
		return "committing"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session identifies who is operating the terminal. It is fixed for the
// lifetime of an Orchestrator.
type Session struct {
	UserID string
	Role   access.Role
}

// Config holds business constants
type Config struct {
	TaxRate           decimal.Decimal
	LoyaltyPointsRate decimal.Decimal
	DebtDueDays       int
	StockRetries      int
	CommitTimeout     time.Duration
	AtomicCommit      bool
}

// DefaultConfig returns the standard business rules
func DefaultConfig() Config {
	return Config{
		TaxRate:           decimal.RequireFromString("0.18"),
		LoyaltyPointsRate: decimal.RequireFromString("0.01"),
		DebtDueDays:       30,
		StockRetries:      3,
		CommitTimeout:     30 * time.Second,
		AtomicCommit:      true,
	}
}

// PaymentIntent is the payment the customer offers
type PaymentIntent struct {
	Method         models.PaymentMethod
	AmountTendered decimal.Decimal
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithEvents publishes checkout outcomes to sink
func WithEvents(sink EventSink) Option {
	return func(o *Orchestrator) { o.events = sink }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives one checkout session: cart, discount, customer and the
// commit sequence. It is not safe for concurrent use.
type Orchestrator struct {
	session Session
	backend Backend
	events  EventSink
	cfg     Config
	engine  *pricing.Engine
	now     func() time.Time
	logger  *zap.Logger

	cart      *cart.Store
	discount  pricing.Discount
	customer  *models.Customer
	products  []models.Product
	customers []models.Customer

	state        State
	lastFailure  error
	lastTx       *Transaction
	catalogStale bool
}

// New creates an orchestrator for session
func New(session Session, backend Backend, cfg Config, opts ...Option) *Orchestrator {
	if cfg.StockRetries < 1 {
		cfg.StockRetries = 1
	}
	o := &Orchestrator{
		session:  session,
		backend:  backend,
		cfg:      cfg,
		engine:   pricing.NewEngine(cfg.TaxRate),
		now:      time.Now,
		logger:   util.GetLogger(),
		cart:     cart.New(),
		discount: pricing.NoDiscount(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Session returns the operator of this checkout
func (o *Orchestrator) Session() Session {
	return o.session
}

// State returns the current state
func (o *Orchestrator) State() State {
	return o.state
}

// LastFailure returns the error of the most recent operation, if it failed
func (o *Orchestrator) LastFailure() error {
	return o.lastFailure
}

// Load fetches the product catalog and customer list
func (o *Orchestrator) Load(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "Checkout.Load")
	defer span.End()

	products, err := o.backend.FetchProducts(ctx)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to load products: %w", err)
	}
	customers, err := o.backend.FetchCustomers(ctx)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to load customers: %w", err)
	}

	o.products = products
	o.customers = customers
	o.catalogStale = false
	return nil
}

// Products returns the catalog snapshot
func (o *Orchestrator) Products() []models.Product {
	out := make([]models.Product, len(o.products))
	copy(out, o.products)
	return out
}

// Search filters the catalog by name (case-insensitive), barcode or SKU
func (o *Orchestrator) Search(term string) []models.Product {
	return FilterProducts(o.products, term)
}

// FilterProducts returns the products matching term by name, barcode or SKU
func FilterProducts(products []models.Product, term string) []models.Product {
	term = strings.TrimSpace(term)
	if term == "" {
		out := make([]models.Product, len(products))
		copy(out, products)
		return out
	}
	lower := strings.ToLower(term)
	var out []models.Product
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), lower) ||
			(p.Barcode != "" && strings.Contains(p.Barcode, term)) ||
			(p.SKU != "" && strings.Contains(p.SKU, term)) {
			out = append(out, p)
		}
	}
	return out
}

// Customers returns the known customers
func (o *Orchestrator) Customers() []models.Customer {
	out := make([]models.Customer, len(o.customers))
	copy(out, o.customers)
	return out
}

func (o *Orchestrator) editable() error {
	if o.state != StateIdle && o.state != StateAwaitingPayment {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, o.state)
	}
	return nil
}

func (o *Orchestrator) fail(err error) error {
	o.lastFailure = err
	return err
}

// AddItem adds one unit of a catalog product to the cart
func (o *Orchestrator) AddItem(productID string) error {
	if err := o.editable(); err != nil {
		return o.fail(err)
	}
	p, ok := o.product(productID)
	if !ok {
		return o.fail(fmt.Errorf("%w: %s", ErrProductNotFound, productID))
	}
	if err := o.cart.Add(p); err != nil {
		o.logger.Info("Rejected out of stock product",
			zap.String("product_id", p.ID),
			zap.Int("stock", p.StockQuantity))
		util.CheckoutRejectionsTotal.WithLabelValues(FailureCode(err)).Inc()
		return o.fail(fmt.Errorf("%s: %w", p.Name, err))
	}
	if line, ok := o.cart.Find(p.ID); ok {
		o.logger.Debug("Item added",
			zap.String("product_id", p.ID),
			zap.Int("quantity", line.Quantity))
	}
	o.lastFailure = nil
	return nil
}

// ChangeQuantity adjusts a line's quantity by delta, never below zero
func (o *Orchestrator) ChangeQuantity(productID string, delta int) error {
	if err := o.editable(); err != nil {
		return o.fail(err)
	}
	if !o.cart.ChangeQuantity(productID, delta) {
		return o.fail(fmt.Errorf("%w: %s not in cart", ErrProductNotFound, productID))
	}
	o.lastFailure = nil
	return nil
}

// RemoveItem drops a line from the cart; absent lines are ignored
func (o *Orchestrator) RemoveItem(productID string) error {
	if err := o.editable(); err != nil {
		return o.fail(err)
	}
	o.cart.Remove(productID)
	o.lastFailure = nil
	return nil
}

// SetDiscount replaces the session discount
func (o *Orchestrator) SetDiscount(d pricing.Discount) error {
	if err := o.editable(); err != nil {
		return o.fail(err)
	}
	o.discount = d
	o.lastFailure = nil
	return nil
}

// SelectCustomer attaches a known customer to the sale
func (o *Orchestrator) SelectCustomer(customerID string) error {
	if err := o.editable(); err != nil {
		return o.fail(err)
	}
	for i := range o.customers {
		if o.customers[i].ID == customerID {
			c := o.customers[i]
			o.customer = &c
			o.lastFailure = nil
			return nil
		}
	}
	return o.fail(fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID))
}

// ClearCustomer detaches the selected customer
func (o *Orchestrator) ClearCustomer() error {
	if err := o.editable(); err != nil {
		return o.fail(err)
	}
	o.customer = nil
	o.lastFailure = nil
	return nil
}

// CreateCustomer registers a customer and selects it
func (o *Orchestrator) CreateCustomer(ctx context.Context, fields models.NewCustomer) (*models.Customer, error) {
	if err := o.editable(); err != nil {
		return nil, o.fail(err)
	}
	fields.FirstName = strings.TrimSpace(fields.FirstName)
	fields.LastName = strings.TrimSpace(fields.LastName)
	if fields.FirstName == "" || fields.LastName == "" {
		return nil, o.fail(ErrInvalidCustomer)
	}

	ctx, span := util.StartSpan(ctx, "Checkout.CreateCustomer")
	defer span.End()

	created, err := o.backend.CreateCustomer(ctx, fields)
	if err != nil {
		util.RecordError(span, err)
		return nil, o.fail(fmt.Errorf("failed to create customer: %w", err))
	}

	o.customers = append(o.customers, *created)
	c := *created
	o.customer = &c
	o.lastFailure = nil

	o.logger.Info("Customer created", zap.String("customer_id", created.ID))
	return created, nil
}

// Totals recomputes the derived amounts from the current cart and discount
func (o *Orchestrator) Totals() pricing.Totals {
	return o.engine.Compute(o.cart.Items(), o.discount)
}

// ProcessPayment opens the payment step
func (o *Orchestrator) ProcessPayment() error {
	if o.state != StateIdle && o.state != StateAwaitingPayment {
		return o.fail(fmt.Errorf("%w: %s", ErrInvalidTransition, o.state))
	}
	if o.cart.IsEmpty() {
		util.CheckoutRejectionsTotal.WithLabelValues("EmptyCart").Inc()
		return o.fail(ErrEmptyCart)
	}
	o.state = StateAwaitingPayment
	o.lastFailure = nil
	return nil
}

// Cancel closes the payment step without touching cart, discount or customer
func (o *Orchestrator) Cancel() error {
	if o.state != StateAwaitingPayment {
		return o.fail(fmt.Errorf("%w: %s", ErrInvalidTransition, o.state))
	}
	o.state = StateIdle
	o.lastFailure = nil
	return nil
}

// Acknowledge returns a completed checkout to idle
func (o *Orchestrator) Acknowledge() error {
	if o.state != StateComplete {
		return o.fail(fmt.Errorf("%w: %s", ErrInvalidTransition, o.state))
	}
	o.state = StateIdle
	o.lastFailure = nil
	return nil
}

// DiscountView describes the active discount
type DiscountView struct {
	Kind  string          `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// View is a read-only snapshot for the presentation layer
type View struct {
	State           State            `json:"state"`
	Items           []cart.LineItem  `json:"items"`
	Totals          pricing.Totals   `json:"totals"`
	LineCount       int              `json:"line_count"`
	TaxRate         decimal.Decimal  `json:"tax_rate"`
	Discount        DiscountView     `json:"discount"`
	Customer        *models.Customer `json:"customer,omitempty"`
	LoyaltyPreview  int64            `json:"loyalty_points_preview"`
	LastFailure     string           `json:"last_failure,omitempty"`
	LastFailureCode string           `json:"last_failure_code,omitempty"`
	LastTransaction *Transaction     `json:"last_transaction,omitempty"`
	CatalogStale    bool             `json:"catalog_stale"`
}

// View returns the current session snapshot
func (o *Orchestrator) View() View {
	totals := o.Totals()
	v := View{
		State:        o.state,
		Items:        o.cart.Items(),
		LineCount:    o.cart.Len(),
		TaxRate:      o.engine.TaxRate(),
		Totals:       totals,
		Discount:     DiscountView{Kind: o.discount.Kind().String(), Value: o.discount.Value()},
		CatalogStale: o.catalogStale,
	}
	if o.customer != nil {
		c := *o.customer
		v.Customer = &c
		v.LoyaltyPreview = currency.Points(totals.PayableTotal, o.cfg.LoyaltyPointsRate)
	}
	if o.lastFailure != nil {
		v.LastFailure = o.lastFailure.Error()
		v.LastFailureCode = FailureCode(o.lastFailure)
	}
	if o.lastTx != nil {
		tx := *o.lastTx
		v.LastTransaction = &tx
	}
	return v
}

func (o *Orchestrator) product(id string) (models.Product, bool) {
	for _, p := range o.products {
		if p.ID == id {
			return p, true
		}
	}
	return models.Product{}, false
}
