package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/ridloal/e-commerce-order-engine/internal/inventory/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/logger"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product is not active")
	ErrVariantNotFound   = errors.New("product variant not found")
	ErrVariantPoolShared = errors.New("variant draws from the product stock pool")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockOutOfBounds  = errors.New("stock movement would make a counter negative")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx. Stock movements always run
// on a *sql.Tx owned by the caller so order state and stock commit together.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
	Commit() error
	Rollback() error
}

type LockedProduct struct {
	ID       string
	IsActive bool
}

type InventoryRepository interface {
	BeginTx(ctx context.Context) (DBTX, error)

	// LockProductForUpdate serializes every stock movement for a product,
	// variants included, behind the parent row's lock.
	LockProductForUpdate(ctx context.Context, dbops DBTX, productID string) (*LockedProduct, error)

	DecrementProductStock(ctx context.Context, dbops DBTX, productID string, qty int) error
	IncrementProductStock(ctx context.Context, dbops DBTX, productID string, qty int) error
	DecrementVariantStock(ctx context.Context, dbops DBTX, productID, variantID string, qty int) error
	IncrementVariantStock(ctx context.Context, dbops DBTX, productID, variantID string, qty int) error
	IncrementSoldCount(ctx context.Context, dbops DBTX, productID string, qty int) error
	DecrementSoldCount(ctx context.Context, dbops DBTX, productID string, qty int) error

	// Restoration-failure queue, written outside the failed transaction.
	QueueRestorationFailure(ctx context.Context, orderID string, items []domain.StockItem, cause string) error
	ListUnresolvedRestorations(ctx context.Context, limit int) ([]domain.RestorationFailure, error)
	MarkRestorationResolved(ctx context.Context, id int64) error
	BumpRestorationAttempt(ctx context.Context, id int64, lastErr string) error
}

type postgresInventoryRepository struct {
	db *sql.DB
}

func NewPostgresInventoryRepository(db *sql.DB) InventoryRepository {
	return &postgresInventoryRepository{db: db}
}

func (r *postgresInventoryRepository) BeginTx(ctx context.Context) (DBTX, error) {
	return r.db.BeginTx(ctx, nil)
}

func (r *postgresInventoryRepository) LockProductForUpdate(ctx context.Context, dbops DBTX, productID string) (*LockedProduct, error) {
	query := `SELECT id, is_active FROM products WHERE id = $1 FOR UPDATE`
	var lp LockedProduct
	err := dbops.QueryRowContext(ctx, query, productID).Scan(&lp.ID, &lp.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		logger.Error("LockProductForUpdate: query failed", err, nil)
		return nil, err
	}
	return &lp, nil
}

func (r *postgresInventoryRepository) DecrementProductStock(ctx context.Context, dbops DBTX, productID string, qty int) error {
	query := `UPDATE products SET stock_quantity = stock_quantity - $1, sold_count = sold_count + $1, updated_at = NOW()
              WHERE id = $2 AND is_active = TRUE AND (stock_quantity - $1) >= 0`
	res, err := dbops.ExecContext(ctx, query, qty, productID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" { // check_violation
			logger.Error("DecrementProductStock: check violation", err, nil)
			return ErrInsufficientStock
		}
		logger.Error("DecrementProductStock: exec failed", err, nil)
		return err
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *postgresInventoryRepository) IncrementProductStock(ctx context.Context, dbops DBTX, productID string, qty int) error {
	query := `UPDATE products SET stock_quantity = stock_quantity + $1, sold_count = sold_count - $1, updated_at = NOW()
              WHERE id = $2 AND (sold_count - $1) >= 0`
	res, err := dbops.ExecContext(ctx, query, qty, productID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" { // check_violation
			logger.Error("IncrementProductStock: check violation", err, nil)
			return ErrStockOutOfBounds
		}
		logger.Error("IncrementProductStock: exec failed", err, nil)
		return err
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return ErrStockOutOfBounds
	}
	return nil
}

// DecrementVariantStock moves stock on a variant's dedicated pool. Callers
// must hold the parent product's row lock.
func (r *postgresInventoryRepository) DecrementVariantStock(ctx context.Context, dbops DBTX, productID, variantID string, qty int) error {
	var stock sql.NullInt64
	selectQuery := `SELECT stock_quantity FROM product_variants WHERE id = $1 AND product_id = $2 AND is_active = TRUE`
	err := dbops.QueryRowContext(ctx, selectQuery, variantID, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVariantNotFound
		}
		logger.Error("DecrementVariantStock: select failed", err, nil)
		return err
	}
	if !stock.Valid {
		return ErrVariantPoolShared
	}

	query := `UPDATE product_variants SET stock_quantity = stock_quantity - $1
              WHERE id = $2 AND product_id = $3 AND (stock_quantity - $1) >= 0`
	res, err := dbops.ExecContext(ctx, query, qty, variantID, productID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" { // check_violation
			return ErrInsufficientStock
		}
		logger.Error("DecrementVariantStock: exec failed", err, nil)
		return err
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *postgresInventoryRepository) IncrementVariantStock(ctx context.Context, dbops DBTX, productID, variantID string, qty int) error {
	var stock sql.NullInt64
	selectQuery := `SELECT stock_quantity FROM product_variants WHERE id = $1 AND product_id = $2`
	err := dbops.QueryRowContext(ctx, selectQuery, variantID, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVariantNotFound
		}
		logger.Error("IncrementVariantStock: select failed", err, nil)
		return err
	}
	if !stock.Valid {
		return ErrVariantPoolShared
	}

	query := `UPDATE product_variants SET stock_quantity = stock_quantity + $1
              WHERE id = $2 AND product_id = $3`
	_, err = dbops.ExecContext(ctx, query, qty, variantID, productID)
	if err != nil {
		logger.Error("IncrementVariantStock: exec failed", err, nil)
		return err
	}
	return nil
}

func (r *postgresInventoryRepository) IncrementSoldCount(ctx context.Context, dbops DBTX, productID string, qty int) error {
	query := `UPDATE products SET sold_count = sold_count + $1, updated_at = NOW() WHERE id = $2`
	res, err := dbops.ExecContext(ctx, query, qty, productID)
	if err != nil {
		logger.Error("IncrementSoldCount: exec failed", err, nil)
		return err
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *postgresInventoryRepository) DecrementSoldCount(ctx context.Context, dbops DBTX, productID string, qty int) error {
	query := `UPDATE products SET sold_count = sold_count - $1, updated_at = NOW()
              WHERE id = $2 AND (sold_count - $1) >= 0`
	res, err := dbops.ExecContext(ctx, query, qty, productID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" { // check_violation
			return ErrStockOutOfBounds
		}
		logger.Error("DecrementSoldCount: exec failed", err, nil)
		return err
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return ErrStockOutOfBounds
	}
	return nil
}

// --- Restoration-failure queue ---

func (r *postgresInventoryRepository) QueueRestorationFailure(ctx context.Context, orderID string, items []domain.StockItem, cause string) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	query := `INSERT INTO stock_restoration_failures (order_id, items, attempts, last_error, created_at)
              VALUES ($1, $2, 0, $3, $4)`
	_, err = r.db.ExecContext(ctx, query, orderID, payload, cause, time.Now())
	if err != nil {
		logger.Error("QueueRestorationFailure: insert failed", err, map[string]interface{}{"order_id": orderID})
		return err
	}
	return nil
}

func (r *postgresInventoryRepository) ListUnresolvedRestorations(ctx context.Context, limit int) ([]domain.RestorationFailure, error) {
	query := `SELECT id, order_id, items, attempts, last_error, resolved_at, created_at
              FROM stock_restoration_failures
              WHERE resolved_at IS NULL ORDER BY id ASC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		logger.Error("ListUnresolvedRestorations: query failed", err, nil)
		return nil, err
	}
	defer rows.Close()

	var out []domain.RestorationFailure
	for rows.Next() {
		var f domain.RestorationFailure
		var payload []byte
		var resolvedAt sql.NullTime
		if err := rows.Scan(&f.ID, &f.OrderID, &payload, &f.Attempts, &f.LastError, &resolvedAt, &f.CreatedAt); err != nil {
			logger.Error("ListUnresolvedRestorations: scan failed", err, nil)
			return nil, err
		}
		if err := json.Unmarshal(payload, &f.Items); err != nil {
			logger.Error("ListUnresolvedRestorations: bad items payload", err, map[string]interface{}{"id": f.ID})
			continue
		}
		if resolvedAt.Valid {
			f.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *postgresInventoryRepository) MarkRestorationResolved(ctx context.Context, id int64) error {
	query := `UPDATE stock_restoration_failures SET resolved_at = NOW() WHERE id = $1 AND resolved_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		logger.Error("MarkRestorationResolved: exec failed", err, map[string]interface{}{"id": id})
	}
	return err
}

func (r *postgresInventoryRepository) BumpRestorationAttempt(ctx context.Context, id int64, lastErr string) error {
	query := `UPDATE stock_restoration_failures SET attempts = attempts + 1, last_error = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, lastErr, id)
	if err != nil {
		logger.Error("BumpRestorationAttempt: exec failed", err, map[string]interface{}{"id": id})
	}
	return err
}
