package service

import (
	"context"
	"fmt"

	"pos-checkout/internal/models"
	"pos-checkout/internal/store"
	"pos-checkout/internal/util"

	"go.uber.org/zap"
)

// LoyaltyStore records loyalty awards exactly once per event
type LoyaltyStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	AwardLoyaltyPoints(ctx context.Context, eventID, eventType, customerID string, points int64) (bool, error)
}

var _ LoyaltyStore = (*store.Store)(nil)

// LoyaltyService applies sale events to customer accounts
type LoyaltyService struct {
	store  LoyaltyStore
	logger *zap.Logger
}

func NewLoyaltyService(store LoyaltyStore) *LoyaltyService {
	return &LoyaltyService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// HandleSaleCompleted credits the sale's loyalty points to its customer
func (s *LoyaltyService) HandleSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "LoyaltyService.HandleSaleCompleted")
	defer span.End()

	processed, err := s.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		s.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if event.CustomerID == "" || event.LoyaltyPoints <= 0 {
		return s.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
	}

	applied, err := s.store.AwardLoyaltyPoints(ctx, event.EventID, event.EventType, event.CustomerID, event.LoyaltyPoints)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to award loyalty points: %w", err)
	}
	if !applied {
		return nil
	}

	util.LoyaltyPointsAwarded.Add(float64(event.LoyaltyPoints))
	s.logger.Info("Loyalty points awarded",
		zap.String("sale_id", event.SaleID),
		zap.String("customer_id", event.CustomerID),
		zap.Int64("points", event.LoyaltyPoints))
	return nil
}

// HandleSaleCompensated records a rolled back checkout. Incomplete
// compensations are logged at error level for manual reconciliation.
func (s *LoyaltyService) HandleSaleCompensated(ctx context.Context, event *models.SaleCompensatedEvent) error {
	ctx, span := util.StartSpan(ctx, "LoyaltyService.HandleSaleCompensated")
	defer span.End()

	processed, err := s.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		return nil
	}

	fields := []zap.Field{
		zap.String("sale_id", event.SaleID),
		zap.String("user_id", event.UserID),
		zap.String("failed_step", event.FailedStep),
		zap.String("reason", event.Reason),
	}
	if event.Compensated {
		s.logger.Warn("Checkout rolled back", fields...)
	} else {
		s.logger.Error("Checkout left partial records", fields...)
	}

	return s.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}
