package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pos-checkout/internal/checkout"
	"pos-checkout/internal/redisclient"
	"pos-checkout/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const commitLockTTL = time.Minute

// ErrRequestInProgress is returned when a commit with the same key is running
var ErrRequestInProgress = errors.New("a request with this idempotency key is in progress")

// IdempotencyStore keeps results and locks keyed by idempotency key
type IdempotencyStore interface {
	GetIdempotencyKey(ctx context.Context, key string) ([]byte, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

// IdempotencyGuard makes commit retries with the same key return the first
// result instead of selling twice.
type IdempotencyGuard struct {
	store  IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

var _ IdempotencyStore = (*redisclient.Client)(nil)

func NewIdempotencyGuard(store IdempotencyStore, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		store:  store,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Commit runs fn once per key. The bool result reports a replayed
// transaction. An empty key disables the guard.
func (g *IdempotencyGuard) Commit(ctx context.Context, key string, fn func(context.Context) (*checkout.Transaction, error)) (*checkout.Transaction, bool, error) {
	if key == "" {
		tx, err := fn(ctx)
		return tx, false, err
	}

	ctx, span := util.StartSpan(ctx, "IdempotencyGuard.Commit")
	defer span.End()

	if tx, ok := g.lookup(ctx, key); ok {
		return tx, true, nil
	}

	token := uuid.New().String()
	acquired, err := g.store.AcquireLock(ctx, "commit:"+key, token, commitLockTTL)
	if err != nil {
		// lock store unreachable: run unguarded
		g.logger.Warn("Idempotency lock unavailable", zap.String("key", key), zap.Error(err))
		tx, err := fn(ctx)
		return tx, false, err
	}
	if !acquired {
		return nil, false, ErrRequestInProgress
	}
	defer func() {
		if _, err := g.store.ReleaseLock(context.WithoutCancel(ctx), "commit:"+key, token); err != nil {
			g.logger.Warn("Failed to release idempotency lock", zap.String("key", key), zap.Error(err))
		}
	}()

	// a concurrent holder may have finished between lookup and lock
	if tx, ok := g.lookup(ctx, key); ok {
		return tx, true, nil
	}

	tx, err := fn(ctx)
	if err != nil {
		util.RecordError(span, err)
		return nil, false, err
	}

	data, err := json.Marshal(tx)
	if err == nil {
		err = g.store.SetIdempotencyKey(ctx, key, data, g.ttl)
	}
	if err != nil {
		g.logger.Error("Failed to store idempotent result",
			zap.String("key", key),
			zap.String("sale_id", tx.ID),
			zap.Error(err))
	}
	return tx, false, nil
}

func (g *IdempotencyGuard) lookup(ctx context.Context, key string) (*checkout.Transaction, bool) {
	data, err := g.store.GetIdempotencyKey(ctx, key)
	if err != nil {
		if !errors.Is(err, redisclient.ErrCacheMiss) {
			g.logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var tx checkout.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		g.logger.Warn("Discarding unreadable idempotent result", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	g.logger.Info("Duplicate commit request detected",
		zap.String("idempotency_key", key),
		zap.String("sale_id", tx.ID))
	return &tx, true
}
