package cart

import (
	"errors"

	"pos-checkout/internal/models"

	"github.com/shopspring/decimal"
)

// ErrOutOfStock is returned when adding a product whose stock is zero or less
var ErrOutOfStock = errors.New("product is out of stock")

// LineItem is one product in the cart
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Store is an ordered collection of line items. Not safe for concurrent use.
type Store struct {
	items []LineItem
}

// New creates an empty cart
func New() *Store {
	return &Store{}
}

// Add puts one unit of product into the cart, merging with an existing line
func (s *Store) Add(product models.Product) error {
	if product.StockQuantity <= 0 {
		return ErrOutOfStock
	}

	if i := s.index(product.ID); i >= 0 {
		s.items[i].Quantity++
		return nil
	}

	s.items = append(s.items, LineItem{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.SellingPrice,
		Quantity:  1,
	})
	return nil
}

// ChangeQuantity sets quantity to max(0, current+delta). Zeroed lines stay in
// the cart until removed. Returns false when id is not in the cart.
func (s *Store) ChangeQuantity(id string, delta int) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	q := s.items[i].Quantity + delta
	if q < 0 {
		q = 0
	}
	s.items[i].Quantity = q
	return true
}

// Remove deletes the line for id; absent ids are ignored
func (s *Store) Remove(id string) {
	i := s.index(id)
	if i < 0 {
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
}

// Clear empties the cart
func (s *Store) Clear() {
	s.items = nil
}

// Items returns a copy of the lines in insertion order
func (s *Store) Items() []LineItem {
	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Billable returns the lines with a positive quantity
func (s *Store) Billable() []LineItem {
	out := make([]LineItem, 0, len(s.items))
	for _, it := range s.items {
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return out
}

// Find returns the line for id
func (s *Store) Find(id string) (LineItem, bool) {
	i := s.index(id)
	if i < 0 {
		return LineItem{}, false
	}
	return s.items[i], true
}

// Len is the number of lines, zero-quantity lines included
func (s *Store) Len() int {
	return len(s.items)
}

// IsEmpty reports whether nothing in the cart can be sold
func (s *Store) IsEmpty() bool {
	for _, it := range s.items {
		if it.Quantity > 0 {
			return false
		}
	}
	return true
}

func (s *Store) index(id string) int {
	for i := range s.items {
		if s.items[i].ProductID == id {
			return i
		}
	}
	return -1
}
