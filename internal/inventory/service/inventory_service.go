package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ridloal/e-commerce-order-engine/internal/inventory/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/inventory/repository"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/logger"
)

var (
	ErrReserveFailed = errors.New("stock reservation failed")
	ErrRestoreFailed = errors.New("stock restoration failed")
)

const restorationBatchSize = 50

// InventoryLedger is the sole owner of stock mutation. Reserve and Restore
// run inside a transaction owned by the caller, so an order's stock movement
// and its state change commit or roll back together.
type InventoryLedger interface {
	Reserve(ctx context.Context, dbops repository.DBTX, items []domain.StockItem) error
	Restore(ctx context.Context, dbops repository.DBTX, items []domain.StockItem) error

	QueueRestoration(ctx context.Context, orderID string, items []domain.StockItem, cause string)
	RetryFailedRestorations(ctx context.Context)
}

type inventoryLedgerImpl struct {
	repo repository.InventoryRepository
}

func NewInventoryLedger(repo repository.InventoryRepository) InventoryLedger {
	return &inventoryLedgerImpl{repo: repo}
}

// sortItems gives every transaction the same lock acquisition order so two
// concurrent reservations cannot deadlock each other.
func sortItems(items []domain.StockItem) []domain.StockItem {
	sorted := make([]domain.StockItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ProductID != sorted[j].ProductID {
			return sorted[i].ProductID < sorted[j].ProductID
		}
		iv, jv := "", ""
		if sorted[i].VariantID != nil {
			iv = *sorted[i].VariantID
		}
		if sorted[j].VariantID != nil {
			jv = *sorted[j].VariantID
		}
		return iv < jv
	})
	return sorted
}

func (s *inventoryLedgerImpl) Reserve(ctx context.Context, dbops repository.DBTX, items []domain.StockItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items to reserve", ErrReserveFailed)
	}

	for _, item := range sortItems(items) {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: product_id %s, quantity must be positive", ErrReserveFailed, item.ProductID)
		}

		locked, err := s.repo.LockProductForUpdate(ctx, dbops, item.ProductID)
		if err != nil {
			return fmt.Errorf("%w: product_id %s: %w", ErrReserveFailed, item.ProductID, err)
		}
		if !locked.IsActive {
			return fmt.Errorf("%w: product_id %s: %w", ErrReserveFailed, item.ProductID, repository.ErrProductInactive)
		}

		if item.VariantID != nil {
			err = s.repo.DecrementVariantStock(ctx, dbops, item.ProductID, *item.VariantID, item.Quantity)
			if errors.Is(err, repository.ErrVariantPoolShared) {
				err = s.repo.DecrementProductStock(ctx, dbops, item.ProductID, item.Quantity)
			} else if err == nil {
				err = s.repo.IncrementSoldCount(ctx, dbops, item.ProductID, item.Quantity)
			}
		} else {
			err = s.repo.DecrementProductStock(ctx, dbops, item.ProductID, item.Quantity)
		}
		if err != nil {
			return fmt.Errorf("%w: product_id %s, quantity %d: %w", ErrReserveFailed, item.ProductID, item.Quantity, err)
		}
	}
	return nil
}

func (s *inventoryLedgerImpl) Restore(ctx context.Context, dbops repository.DBTX, items []domain.StockItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items to restore", ErrRestoreFailed)
	}

	for _, item := range sortItems(items) {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: product_id %s, quantity must be positive", ErrRestoreFailed, item.ProductID)
		}

		if _, err := s.repo.LockProductForUpdate(ctx, dbops, item.ProductID); err != nil {
			return fmt.Errorf("%w: product_id %s: %w", ErrRestoreFailed, item.ProductID, err)
		}

		var err error
		if item.VariantID != nil {
			err = s.repo.IncrementVariantStock(ctx, dbops, item.ProductID, *item.VariantID, item.Quantity)
			if errors.Is(err, repository.ErrVariantPoolShared) {
				err = s.repo.IncrementProductStock(ctx, dbops, item.ProductID, item.Quantity)
			} else if err == nil {
				err = s.repo.DecrementSoldCount(ctx, dbops, item.ProductID, item.Quantity)
			}
		} else {
			err = s.repo.IncrementProductStock(ctx, dbops, item.ProductID, item.Quantity)
		}
		if err != nil {
			return fmt.Errorf("%w: product_id %s, quantity %d: %w", ErrRestoreFailed, item.ProductID, item.Quantity, err)
		}
	}
	return nil
}

// QueueRestoration records a restoration that could not be applied so the
// retry job can pick it up. Queue failures are logged only; at that point
// there is nothing left to do but alert.
func (s *inventoryLedgerImpl) QueueRestoration(ctx context.Context, orderID string, items []domain.StockItem, cause string) {
	if err := s.repo.QueueRestorationFailure(ctx, orderID, items, cause); err != nil {
		logger.Error("CRITICAL: failed to queue stock restoration, stock is under-restored", err,
			map[string]interface{}{"order_id": orderID})
	}
}

// RetryFailedRestorations re-applies queued restorations, each in its own
// transaction. Meant to run from a scheduler.
func (s *inventoryLedgerImpl) RetryFailedRestorations(ctx context.Context) {
	pending, err := s.repo.ListUnresolvedRestorations(ctx, restorationBatchSize)
	if err != nil {
		logger.Error("RetryFailedRestorations: listing failed", err, nil)
		return
	}
	if len(pending) == 0 {
		return
	}

	logger.Info("RetryFailedRestorations: retrying %d queued restorations", len(pending))
	for _, f := range pending {
		tx, err := s.repo.BeginTx(ctx)
		if err != nil {
			logger.Error("RetryFailedRestorations: begin tx failed", err, nil)
			return
		}

		if err := s.Restore(ctx, tx, f.Items); err != nil {
			tx.Rollback()
			logger.Error("RetryFailedRestorations: restore still failing", err, map[string]interface{}{"order_id": f.OrderID})
			s.repo.BumpRestorationAttempt(ctx, f.ID, err.Error())
			continue
		}
		if err := tx.Commit(); err != nil {
			logger.Error("RetryFailedRestorations: commit failed", err, map[string]interface{}{"order_id": f.OrderID})
			s.repo.BumpRestorationAttempt(ctx, f.ID, err.Error())
			continue
		}

		s.repo.MarkRestorationResolved(ctx, f.ID)
		logger.Info("RetryFailedRestorations: restored stock for order %s", f.OrderID)
	}
}
