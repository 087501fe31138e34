package checkout

import (
	"errors"
	"fmt"
	"strings"

	"pos-checkout/internal/cart"
)

// Validation failures. None of these cause a write.
var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrOutOfStock          = cart.ErrOutOfStock
	ErrCustomerRequired    = errors.New("customer details are required for debt transactions")
	ErrInsufficientPayment = errors.New("insufficient payment amount")
	ErrPermissionDenied    = errors.New("user does not have permission to create sales")
)

var (
	ErrInvalidTransition    = errors.New("operation not allowed in current checkout state")
	ErrProductNotFound      = errors.New("product not found")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrInvalidCustomer      = errors.New("first name and last name are required")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")

	// ErrStockConflict is returned by Backend.SetProductStock when the stored
	// stock no longer matches the expected value.
	ErrStockConflict = errors.New("stock changed concurrently")
)

// Persistence steps
const (
	StepSale      = "sale"
	StepSaleItems = "sale_items"
	StepDebt      = "debt"
	StepStock     = "stock"
	StepAtomic    = "atomic_commit"
)

// PersistenceFailure reports a failed write during commit. Compensated is
// true when every write made before the failure was undone.
type PersistenceFailure struct {
	Step               string
	Err                error
	Compensated        bool
	CompensationErrors []error
}

func (e *PersistenceFailure) Error() string {
	msg := fmt.Sprintf("persistence failed at step %s: %v", e.Step, e.Err)
	if len(e.CompensationErrors) > 0 {
		parts := make([]string, len(e.CompensationErrors))
		for i, ce := range e.CompensationErrors {
			parts[i] = ce.Error()
		}
		msg += "; compensation incomplete: " + strings.Join(parts, "; ")
	}
	return msg
}

func (e *PersistenceFailure) Unwrap() error {
	return e.Err
}

// FailureCode names err within the checkout error taxonomy
func FailureCode(err error) string {
	var pf *PersistenceFailure
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pf):
		return "PersistenceFailure"
	case errors.Is(err, ErrEmptyCart):
		return "EmptyCart"
	case errors.Is(err, ErrOutOfStock):
		return "OutOfStock"
	case errors.Is(err, ErrCustomerRequired):
		return "CustomerRequired"
	case errors.Is(err, ErrInsufficientPayment):
		return "InsufficientPayment"
	case errors.Is(err, ErrPermissionDenied):
		return "PermissionDenied"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrProductNotFound):
		return "ProductNotFound"
	case errors.Is(err, ErrCustomerNotFound):
		return "CustomerNotFound"
	case errors.Is(err, ErrInvalidCustomer):
		return "InvalidCustomer"
	case errors.Is(err, ErrUnknownPaymentMethod):
		return "UnknownPaymentMethod"
	default:
		return "Internal"
	}
}
