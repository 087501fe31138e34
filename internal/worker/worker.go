package worker

import (
	"context"
	"errors"

	"pos-checkout/internal/broker"
	"pos-checkout/internal/models"
	"pos-checkout/internal/util"

	"go.uber.org/zap"
)

// SaleEventHandler reacts to sale events
type SaleEventHandler interface {
	HandleSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error
	HandleSaleCompensated(ctx context.Context, event *models.SaleCompensatedEvent) error
}

// LoyaltyWorker consumes sale events and credits loyalty points
type LoyaltyWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewLoyaltyWorker creates a new loyalty worker
func NewLoyaltyWorker(consumer *broker.Consumer, handler SaleEventHandler) *LoyaltyWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnSaleCompleted(handler.HandleSaleCompleted)
	eventHandler.OnSaleCompensated(handler.HandleSaleCompensated)

	return &LoyaltyWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start consumes until ctx is cancelled
func (w *LoyaltyWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting loyalty worker")
	err := w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop stops the worker
func (w *LoyaltyWorker) Stop() error {
	w.logger.Info("Stopping loyalty worker")
	return w.consumer.Close()
}
