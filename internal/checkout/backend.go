package checkout

import (
	"context"

	"pos-checkout/internal/models"
)

// Backend is the remote data store the orchestrator drives
type Backend interface {
	FetchProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	// SetProductStock writes quantity only if the stored stock still equals
	// expected, otherwise it returns ErrStockConflict.
	SetProductStock(ctx context.Context, productID string, expected, quantity int) error

	FetchCustomers(ctx context.Context) ([]models.Customer, error)
	CreateCustomer(ctx context.Context, fields models.NewCustomer) (*models.Customer, error)

	CreateSale(ctx context.Context, sale *models.Sale) error
	DeleteSale(ctx context.Context, saleID string) error
	CreateSaleItem(ctx context.Context, item *models.SaleItem) error
	DeleteSaleItems(ctx context.Context, saleID string) error
	CreateDebt(ctx context.Context, debt *models.Debt) error
	DeleteDebt(ctx context.Context, debtID string) error
}

// AtomicCommitter is implemented by backends that can apply a whole sale in
// one transaction, stock decremented server-side with a floor of zero.
type AtomicCommitter interface {
	CommitSale(ctx context.Context, bundle *models.SaleBundle) error
}

// EventSink receives checkout outcomes
type EventSink interface {
	PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error
	PublishSaleCompensated(ctx context.Context, event *models.SaleCompensatedEvent) error
}
