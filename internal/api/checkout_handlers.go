package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pos-checkout/internal/access"
	"pos-checkout/internal/checkout"
	"pos-checkout/internal/currency"
	"pos-checkout/internal/models"
	"pos-checkout/internal/pricing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AddItemRequest represents the request to add a product to the cart
type AddItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

// ChangeQuantityRequest adjusts a cart line
type ChangeQuantityRequest struct {
	Delta int `json:"delta"`
}

// DiscountRequest sets the session discount. Value is raw form input.
type DiscountRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// SelectCustomerRequest attaches a customer to the sale
type SelectCustomerRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
}

// CommitRequest represents the payment offered at commit
type CommitRequest struct {
	PaymentMethod  string `json:"payment_method" binding:"required"`
	AmountTendered string `json:"amount_tendered"`
}

// openSession starts a checkout for the calling staff member
func (h *Handler) openSession(c *gin.Context) {
	userID, role := staffFrom(c)
	if !access.HasModuleAccess(role, access.ModuleSales) {
		writeError(c, checkout.ErrPermissionDenied, nil)
		return
	}

	var opts []checkout.Option
	if h.deps.Events != nil {
		opts = append(opts, checkout.WithEvents(h.deps.Events))
	}
	orch := checkout.New(checkout.Session{UserID: userID, Role: role}, h.deps.Backend, h.deps.Config, opts...)

	if err := orch.Load(c.Request.Context()); err != nil {
		h.logger.Error("Failed to load checkout data", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to load checkout data",
			"details": err.Error(),
		})
		return
	}

	id := h.sessions.Open(orch)
	h.logger.Info("Checkout session opened",
		zap.String("session_id", id),
		zap.String("user_id", userID),
		zap.String("role", string(role)))

	c.JSON(http.StatusCreated, gin.H{
		"session_id": id,
		"session":    orch.View(),
		"products":   orch.Products(),
		"customers":  orch.Customers(),
	})
}

// withSession resolves the :id session for the caller and runs fn under its lock
func (h *Handler) withSession(c *gin.Context, fn func(*checkout.Orchestrator)) {
	userID, _ := staffFrom(c)
	err := h.sessions.With(c.Param("id"), userID, fn)
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSessionForeign):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// respond writes the session view, or the error alongside it
func respond(c *gin.Context, orch *checkout.Orchestrator, err error) {
	view := orch.View()
	if err != nil {
		writeError(c, err, &view)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) getSession(c *gin.Context) {
	h.withSession(c, func(orch *checkout.Orchestrator) {
		view := orch.View()
		if term, ok := c.GetQuery("q"); ok {
			c.JSON(http.StatusOK, gin.H{"session": view, "products": orch.Search(term)})
			return
		}
		c.JSON(http.StatusOK, view)
	})
}

func (h *Handler) closeSession(c *gin.Context) {
	userID, _ := staffFrom(c)
	if err := h.sessions.Close(c.Param("id"), userID); err != nil {
		status := http.StatusNotFound
		if errors.Is(err, ErrSessionForeign) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.withSession(c, func(orch *checkout.Orchestrator) {
		respond(c, orch, orch.AddItem(req.ProductID))
	})
}

func (h *Handler) changeQuantity(c *gin.Context) {
	var req ChangeQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.withSession(c, func(orch *checkout.Orchestrator) {
		respond(c, orch, orch.ChangeQuantity(c.Param("productId"), req.Delta))
	})
}

func (h *Handler) removeItem(c *gin.Context) {
	h.withSession(c, func(orch *checkout.Orchestrator) {
		respond(c, orch, orch.RemoveItem(c.Param("productId")))
	})
}

func (h *Handler) setDiscount(c *gin.Context) {
	var req DiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := pricing.ParseDiscount(req.Kind, req.Value)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	h.withSession(c, func(orch *checkout.Orchestrator) {
		respond(c, orch, orch.SetDiscount(d))
	})
}

func (h *Handler) selectCustomer(c *gin.Context) {
	var req SelectCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.withSession(c, func(orch *checkout.Orchestrator) {
		respond(c, orch, orch.SelectCustomer(req.CustomerID))
	})
}

func (h *Handler) clearCustomer(c *gin.Context) {
	h.withSession(c, func(orch *checkout.Orchestrator) {
		respond(c, orch, orch.ClearCustomer())
	})
}

// createSessionCustomer registers a customer and selects it for the sale
func (h *Handler) createSessionCustomer(c *gin.Context) {
	var req models.NewCustomer
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.withSession(c, func(orch *checkout.Orchestrator) {
		customer, err := orch.CreateCustomer(c.Request.Context(), req)
		if err != nil {
			view := orch.View()
			if !errors.Is(err, checkout.ErrInvalidCustomer) && !errors.Is(err, checkout.ErrInvalidTransition) {
				c.JSON(http.StatusBadGateway, gin.H{
					"error":   "Failed to create customer",
					"details": err.Error(),
					"session": view,
				})
				return
			}
			writeError(c, err, &view)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"customer": customer, "session": orch.View()})
	})
}

func (h *Handler) processPayment(c *gin.Context) {
	h.withSession(c, func(orch *checkout.Orchestrator) {
		respond(c, orch, orch.ProcessPayment())
	})
}

func (h *Handler) cancelPayment(c *gin.Context) {
	h.withSession(c, func(orch *checkout.Orchestrator) {
		respond(c, orch, orch.Cancel())
	})
}

func (h *Handler) acknowledge(c *gin.Context) {
	h.withSession(c, func(orch *checkout.Orchestrator) {
		respond(c, orch, orch.Acknowledge())
	})
}

// commit settles the sale. Repeating an Idempotency-Key on the same session
// replays the stored receipt.
func (h *Handler) commit(c *gin.Context) {
	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	intent := checkout.PaymentIntent{
		Method:         models.PaymentMethod(req.PaymentMethod),
		AmountTendered: currency.Parse(req.AmountTendered),
	}

	userID, _ := staffFrom(c)
	key := c.GetHeader(headerIdempotencyKey)
	if key != "" {
		key = userID + ":" + c.Param("id") + ":" + key
	}

	h.withSession(c, func(orch *checkout.Orchestrator) {
		run := func(ctx context.Context) (*checkout.Transaction, error) {
			return orch.Commit(ctx, intent)
		}

		var (
			tx       *checkout.Transaction
			replayed bool
			err      error
		)
		if h.deps.Guard != nil {
			tx, replayed, err = h.deps.Guard.Commit(c.Request.Context(), key, run)
		} else {
			tx, err = run(c.Request.Context())
		}

		if err != nil {
			respond(c, orch, err)
			return
		}

		status := http.StatusCreated
		if replayed {
			status = http.StatusOK
			h.logger.Info("Replayed committed sale", zap.String("sale_id", tx.ID))
		}
		c.JSON(status, gin.H{"transaction": tx, "session": orch.View()})
	})
}

// SweepSessions closes idle sessions every interval until ctx is done
func (h *Handler) SweepSessions(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.sessions.Expire(maxIdle); n > 0 {
				h.logger.Info("Expired idle checkout sessions", zap.Int("count", n))
			}
		}
	}
}
