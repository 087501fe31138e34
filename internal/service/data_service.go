package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pos-checkout/internal/checkout"
	"pos-checkout/internal/models"
	"pos-checkout/internal/redisclient"
	"pos-checkout/internal/store"
	"pos-checkout/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Repository is the persistence the data service reads and writes
type Repository interface {
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	SetProductStock(ctx context.Context, id string, expected, quantity int) error
	GetCustomers(ctx context.Context) ([]models.Customer, error)
	CreateCustomer(ctx context.Context, c models.NewCustomer) (*models.Customer, error)
	CreateSale(ctx context.Context, sale *models.Sale) error
	DeleteSale(ctx context.Context, saleID string) error
	CreateSaleItem(ctx context.Context, item *models.SaleItem) error
	DeleteSaleItems(ctx context.Context, saleID string) error
	CreateDebt(ctx context.Context, debt *models.Debt) error
	DeleteDebt(ctx context.Context, debtID string) error
	CommitSale(ctx context.Context, bundle *models.SaleBundle) error
}

// CatalogCache holds the shared product snapshot
type CatalogCache interface {
	CacheProducts(ctx context.Context, products []models.Product, ttl time.Duration) error
	CachedProducts(ctx context.Context) ([]models.Product, error)
	InvalidateProducts(ctx context.Context) error
}

// DataService is the checkout backend: Postgres for records, Redis for the
// catalog snapshot shared between terminals.
type DataService struct {
	repo     Repository
	cache    CatalogCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

var (
	_ Repository               = (*store.Store)(nil)
	_ CatalogCache             = (*redisclient.Client)(nil)
	_ checkout.Backend         = (*DataService)(nil)
	_ checkout.AtomicCommitter = (*DataService)(nil)
)

// NewDataService creates a data service. cache may be nil.
func NewDataService(repo Repository, cache CatalogCache, cacheTTL time.Duration) *DataService {
	return &DataService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// FetchProducts reads the catalog from the database and refreshes the cache
func (s *DataService) FetchProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "DataService.FetchProducts")
	defer span.End()

	products, err := s.repo.GetProducts(ctx)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.CacheProducts(ctx, products, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache catalog", zap.Error(err))
		}
	}
	return products, nil
}

// CachedProducts serves the catalog from cache, falling back to the database
func (s *DataService) CachedProducts(ctx context.Context) ([]models.Product, error) {
	if s.cache != nil {
		products, err := s.cache.CachedProducts(ctx)
		if err == nil {
			util.CatalogCacheRequests.WithLabelValues("hit").Inc()
			return products, nil
		}
		if errors.Is(err, redisclient.ErrCacheMiss) {
			util.CatalogCacheRequests.WithLabelValues("miss").Inc()
		} else {
			util.CatalogCacheRequests.WithLabelValues("error").Inc()
			s.logger.Warn("Catalog cache unavailable", zap.Error(err))
		}
	}
	return s.FetchProducts(ctx)
}

// GetProduct reads one product from the database
func (s *DataService) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "DataService.GetProduct", attribute.String("product.id", productID))
	defer span.End()

	p, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		util.RecordError(span, err)
		return nil, mapStoreError(err)
	}
	return p, nil
}

// SetProductStock performs a compare-and-set on a product's stock
func (s *DataService) SetProductStock(ctx context.Context, productID string, expected, quantity int) error {
	ctx, span := util.StartSpan(ctx, "DataService.SetProductStock",
		attribute.String("product.id", productID),
		attribute.Int("stock.expected", expected),
		attribute.Int("stock.new", quantity))
	defer span.End()

	if err := s.repo.SetProductStock(ctx, productID, expected, quantity); err != nil {
		util.RecordError(span, err)
		return mapStoreError(err)
	}
	s.invalidateCatalog(ctx)
	return nil
}

// FetchCustomers reads active customers
func (s *DataService) FetchCustomers(ctx context.Context) ([]models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "DataService.FetchCustomers")
	defer span.End()

	customers, err := s.repo.GetCustomers(ctx)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	return customers, nil
}

// CreateCustomer registers a customer
func (s *DataService) CreateCustomer(ctx context.Context, fields models.NewCustomer) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "DataService.CreateCustomer")
	defer span.End()

	c, err := s.repo.CreateCustomer(ctx, fields)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	return c, nil
}

func (s *DataService) CreateSale(ctx context.Context, sale *models.Sale) error {
	ctx, span := util.StartSpan(ctx, "DataService.CreateSale")
	defer span.End()
	return s.traced(span, s.repo.CreateSale(ctx, sale))
}

func (s *DataService) DeleteSale(ctx context.Context, saleID string) error {
	ctx, span := util.StartSpan(ctx, "DataService.DeleteSale", attribute.String("sale.id", saleID))
	defer span.End()
	return s.traced(span, s.repo.DeleteSale(ctx, saleID))
}

func (s *DataService) CreateSaleItem(ctx context.Context, item *models.SaleItem) error {
	ctx, span := util.StartSpan(ctx, "DataService.CreateSaleItem", attribute.String("sale.id", item.SaleID))
	defer span.End()
	return s.traced(span, s.repo.CreateSaleItem(ctx, item))
}

func (s *DataService) DeleteSaleItems(ctx context.Context, saleID string) error {
	ctx, span := util.StartSpan(ctx, "DataService.DeleteSaleItems", attribute.String("sale.id", saleID))
	defer span.End()
	return s.traced(span, s.repo.DeleteSaleItems(ctx, saleID))
}

func (s *DataService) CreateDebt(ctx context.Context, debt *models.Debt) error {
	ctx, span := util.StartSpan(ctx, "DataService.CreateDebt", attribute.String("sale.id", debt.SaleID))
	defer span.End()
	return s.traced(span, s.repo.CreateDebt(ctx, debt))
}

func (s *DataService) DeleteDebt(ctx context.Context, debtID string) error {
	ctx, span := util.StartSpan(ctx, "DataService.DeleteDebt")
	defer span.End()
	return s.traced(span, s.repo.DeleteDebt(ctx, debtID))
}

// CommitSale applies a whole sale in one database transaction
func (s *DataService) CommitSale(ctx context.Context, bundle *models.SaleBundle) error {
	ctx, span := util.StartSpan(ctx, "DataService.CommitSale",
		attribute.Int("sale.items", len(bundle.Items)),
		attribute.Bool("sale.debt", bundle.Debt != nil))
	defer span.End()

	if err := s.repo.CommitSale(ctx, bundle); err != nil {
		util.RecordError(span, err)
		return mapStoreError(err)
	}
	s.invalidateCatalog(ctx)
	return nil
}

func (s *DataService) traced(span trace.Span, err error) error {
	util.RecordError(span, err)
	return err
}

func (s *DataService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProducts(ctx); err != nil {
		s.logger.Warn("Failed to invalidate catalog cache", zap.Error(err))
	}
}

// mapStoreError translates store sentinels into checkout sentinels
func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrStockConflict):
		return checkout.ErrStockConflict
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", checkout.ErrProductNotFound, err)
	default:
		return err
	}
}
