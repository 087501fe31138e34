package service

import (
	"context"
	"errors"
	"testing"

	"pos-checkout/internal/models"
	"pos-checkout/internal/redisclient"
	"pos-checkout/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

var errDB = errors.New("database unavailable")

func setupRedis(t *testing.T) (*redisclient.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return redisclient.NewFromRedis(rdb), mr
}

type fakeRepo struct {
	products    []models.Product
	productErr  error
	stockErr    error
	commitErr   error
	fetchCalls  int
	commits     int
	stockWrites int
}

func (r *fakeRepo) GetProducts(_ context.Context) ([]models.Product, error) {
	r.fetchCalls++
	if r.productErr != nil {
		return nil, r.productErr
	}
	return r.products, nil
}

func (r *fakeRepo) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	for _, p := range r.products {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeRepo) SetProductStock(_ context.Context, _ string, _, _ int) error {
	r.stockWrites++
	return r.stockErr
}

func (r *fakeRepo) GetCustomers(_ context.Context) ([]models.Customer, error) {
	return nil, nil
}

func (r *fakeRepo) CreateCustomer(_ context.Context, c models.NewCustomer) (*models.Customer, error) {
	return &models.Customer{ID: "c-new", FirstName: c.FirstName, LastName: c.LastName}, nil
}

func (r *fakeRepo) CreateSale(_ context.Context, sale *models.Sale) error {
	sale.ID = "s1"
	return nil
}

func (r *fakeRepo) DeleteSale(_ context.Context, _ string) error                { return nil }
func (r *fakeRepo) CreateSaleItem(_ context.Context, _ *models.SaleItem) error { return nil }
func (r *fakeRepo) DeleteSaleItems(_ context.Context, _ string) error          { return nil }
func (r *fakeRepo) CreateDebt(_ context.Context, _ *models.Debt) error         { return nil }
func (r *fakeRepo) DeleteDebt(_ context.Context, _ string) error               { return nil }

func (r *fakeRepo) CommitSale(_ context.Context, b *models.SaleBundle) error {
	r.commits++
	if r.commitErr != nil {
		return r.commitErr
	}
	b.Sale.ID = "s1"
	return nil
}

type fakeLoyaltyStore struct {
	processed map[string]string
	points    map[string]int64
	checkErr  error
}

func newFakeLoyaltyStore() *fakeLoyaltyStore {
	return &fakeLoyaltyStore{processed: map[string]string{}, points: map[string]int64{}}
}

func (f *fakeLoyaltyStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	_, ok := f.processed[eventID]
	return ok, nil
}

func (f *fakeLoyaltyStore) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	f.processed[eventID] = eventType
	return nil
}

func (f *fakeLoyaltyStore) AwardLoyaltyPoints(_ context.Context, eventID, eventType, customerID string, points int64) (bool, error) {
	if _, ok := f.processed[eventID]; ok {
		return false, nil
	}
	f.processed[eventID] = eventType
	f.points[customerID] += points
	return true, nil
}

type fakeRoles map[string]string

func (f fakeRoles) GetStaffRole(_ context.Context, id string) (string, error) {
	r, ok := f[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return r, nil
}
