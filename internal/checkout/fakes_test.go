package checkout

import (
	"context"
	"errors"
	"fmt"

	"pos-checkout/internal/models"

	"github.com/shopspring/decimal"
)

var errBackendDown = errors.New("backend unavailable")

// fakeBackend is an in-memory Backend with failure injection
type fakeBackend struct {
	order     []string
	products  map[string]*models.Product
	customers []models.Customer
	sales     map[string]*models.Sale
	items     map[string][]*models.SaleItem
	debts     map[string]*models.Debt

	// method name -> error returned by that method
	failOn map[string]error
	// CreateSaleItem fails once this many items were created (-1 disables)
	failItemsAfter int
	// productID -> amount another terminal sells right before our first write
	concurrentSale map[string]int

	calls  []string
	nextID int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products:       map[string]*models.Product{},
		sales:          map[string]*models.Sale{},
		items:          map[string][]*models.SaleItem{},
		debts:          map[string]*models.Debt{},
		failOn:         map[string]error{},
		failItemsAfter: -1,
		concurrentSale: map[string]int{},
	}
}

func (f *fakeBackend) addProduct(id, name, price string, stock int) {
	f.order = append(f.order, id)
	f.products[id] = &models.Product{
		ID:            id,
		SKU:           "SKU-" + id,
		Barcode:       "600" + id,
		Name:          name,
		SellingPrice:  decimal.RequireFromString(price),
		StockQuantity: stock,
	}
}

func (f *fakeBackend) stock(id string) int {
	return f.products[id].StockQuantity
}

func (f *fakeBackend) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeBackend) call(name string) error {
	f.calls = append(f.calls, name)
	return f.failOn[name]
}

func (f *fakeBackend) FetchProducts(_ context.Context) ([]models.Product, error) {
	if err := f.call("FetchProducts"); err != nil {
		return nil, err
	}
	out := make([]models.Product, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.products[id])
	}
	return out, nil
}

func (f *fakeBackend) GetProduct(_ context.Context, productID string) (*models.Product, error) {
	if err := f.call("GetProduct"); err != nil {
		return nil, err
	}
	p, ok := f.products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeBackend) SetProductStock(_ context.Context, productID string, expected, quantity int) error {
	if err := f.call("SetProductStock"); err != nil {
		return err
	}
	p, ok := f.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	if n, ok := f.concurrentSale[productID]; ok {
		delete(f.concurrentSale, productID)
		p.StockQuantity -= n
	}
	if p.StockQuantity != expected {
		return ErrStockConflict
	}
	p.StockQuantity = quantity
	return nil
}

func (f *fakeBackend) FetchCustomers(_ context.Context) ([]models.Customer, error) {
	if err := f.call("FetchCustomers"); err != nil {
		return nil, err
	}
	out := make([]models.Customer, len(f.customers))
	copy(out, f.customers)
	return out, nil
}

func (f *fakeBackend) CreateCustomer(_ context.Context, fields models.NewCustomer) (*models.Customer, error) {
	if err := f.call("CreateCustomer"); err != nil {
		return nil, err
	}
	c := models.Customer{
		ID:        f.id("cust"),
		FirstName: fields.FirstName,
		LastName:  fields.LastName,
		Email:     fields.Email,
		Phone:     fields.Phone,
		Address:   fields.Address,
		IsActive:  true,
	}
	f.customers = append(f.customers, c)
	return &c, nil
}

func (f *fakeBackend) CreateSale(_ context.Context, sale *models.Sale) error {
	if err := f.call("CreateSale"); err != nil {
		return err
	}
	sale.ID = f.id("sale")
	cp := *sale
	f.sales[sale.ID] = &cp
	return nil
}

func (f *fakeBackend) DeleteSale(_ context.Context, saleID string) error {
	if err := f.call("DeleteSale"); err != nil {
		return err
	}
	delete(f.sales, saleID)
	return nil
}

func (f *fakeBackend) CreateSaleItem(_ context.Context, item *models.SaleItem) error {
	if err := f.call("CreateSaleItem"); err != nil {
		return err
	}
	if f.failItemsAfter >= 0 && len(f.items[item.SaleID]) >= f.failItemsAfter {
		return errBackendDown
	}
	item.ID = f.id("item")
	cp := *item
	f.items[item.SaleID] = append(f.items[item.SaleID], &cp)
	return nil
}

func (f *fakeBackend) DeleteSaleItems(_ context.Context, saleID string) error {
	if err := f.call("DeleteSaleItems"); err != nil {
		return err
	}
	delete(f.items, saleID)
	return nil
}

func (f *fakeBackend) CreateDebt(_ context.Context, debt *models.Debt) error {
	if err := f.call("CreateDebt"); err != nil {
		return err
	}
	debt.ID = f.id("debt")
	cp := *debt
	f.debts[debt.ID] = &cp
	return nil
}

func (f *fakeBackend) DeleteDebt(_ context.Context, debtID string) error {
	if err := f.call("DeleteDebt"); err != nil {
		return err
	}
	delete(f.debts, debtID)
	return nil
}

// atomicBackend adds AtomicCommitter to fakeBackend
type atomicBackend struct {
	*fakeBackend
	commitErr error
	bundles   []*models.SaleBundle
}

func (a *atomicBackend) CommitSale(_ context.Context, bundle *models.SaleBundle) error {
	a.calls = append(a.calls, "CommitSale")
	if a.commitErr != nil {
		return a.commitErr
	}
	bundle.Sale.ID = a.id("sale")
	a.bundles = append(a.bundles, bundle)
	for _, adj := range bundle.Stock {
		p := a.products[adj.ProductID]
		p.StockQuantity -= adj.Quantity
		if p.StockQuantity < 0 {
			p.StockQuantity = 0
		}
	}
	return nil
}

// fakeSink records published events
type fakeSink struct {
	completed   []*models.SaleCompletedEvent
	compensated []*models.SaleCompensatedEvent
	err         error
}

func (s *fakeSink) PublishSaleCompleted(_ context.Context, event *models.SaleCompletedEvent) error {
	s.completed = append(s.completed, event)
	return s.err
}

func (s *fakeSink) PublishSaleCompensated(_ context.Context, event *models.SaleCompensatedEvent) error {
	s.compensated = append(s.compensated, event)
	return s.err
}
