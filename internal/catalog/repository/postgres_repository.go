package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/ridloal/e-commerce-order-engine/internal/catalog/domain"
	"github.com/ridloal/e-commerce-order-engine/internal/platform/logger"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("product variant not found")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrCouponExhausted = errors.New("coupon has reached its usage limit")
	ErrCouponUserLimit = errors.New("coupon usage limit reached for this user")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so coupon-usage writes can
// ride inside the order-creation transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
	Commit() error
	Rollback() error
}

type CatalogRepository interface {
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetVariantByID(ctx context.Context, productID, variantID string) (*domain.ProductVariant, error)

	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	CountCouponUsages(ctx context.Context, couponID string) (int, error)
	CountCouponUsagesByUser(ctx context.Context, couponID, userID string) (int, error)

	// RecordCouponUsage re-checks the usage caps under the coupon row's lock
	// before inserting, so two concurrent orders cannot overshoot max_uses.
	// The pricing engine's earlier check is an unlocked fast path.
	RecordCouponUsage(ctx context.Context, dbops DBTX, usage *domain.CouponUsage) error
}

type postgresCatalogRepository struct {
	db *sql.DB
}

func NewPostgresCatalogRepository(db *sql.DB) CatalogRepository {
	return &postgresCatalogRepository{db: db}
}

func (r *postgresCatalogRepository) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT id, name, image_url, category_id, price, discount_percent, stock_quantity, sold_count, is_active, created_at, updated_at
              FROM products WHERE id = $1`
	var p domain.Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.ImageURL, &p.CategoryID, &p.Price, &p.DiscountPercent,
		&p.StockQuantity, &p.SoldCount, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		logger.Error("GetProductByID: query failed", err, nil)
		return nil, err
	}
	return &p, nil
}

func (r *postgresCatalogRepository) GetVariantByID(ctx context.Context, productID, variantID string) (*domain.ProductVariant, error) {
	query := `SELECT id, product_id, name, price_modifier, stock_quantity, is_active, created_at
              FROM product_variants WHERE id = $1 AND product_id = $2`
	var v domain.ProductVariant
	var stock sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, variantID, productID).Scan(
		&v.ID, &v.ProductID, &v.Name, &v.PriceModifier, &stock, &v.IsActive, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVariantNotFound
		}
		logger.Error("GetVariantByID: query failed", err, nil)
		return nil, err
	}
	if stock.Valid {
		s := int(stock.Int64)
		v.StockQuantity = &s
	}
	return &v, nil
}

func (r *postgresCatalogRepository) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `SELECT id, code, type, value, max_discount, min_purchase, max_uses, max_uses_per_user,
                     valid_from, valid_until, is_active, category_ids, product_ids, user_ids, created_at
              FROM coupons WHERE code = $1`
	var c domain.Coupon
	var maxDiscount sql.NullFloat64
	var maxUses, maxUsesPerUser sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&c.ID, &c.Code, &c.Type, &c.Value, &maxDiscount, &c.MinPurchase, &maxUses, &maxUsesPerUser,
		&c.ValidFrom, &c.ValidUntil, &c.IsActive,
		pq.Array(&c.CategoryIDs), pq.Array(&c.ProductIDs), pq.Array(&c.UserIDs), &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		logger.Error("GetCouponByCode: query failed", err, nil)
		return nil, err
	}
	if maxDiscount.Valid {
		c.MaxDiscount = &maxDiscount.Float64
	}
	if maxUses.Valid {
		m := int(maxUses.Int64)
		c.MaxUses = &m
	}
	if maxUsesPerUser.Valid {
		m := int(maxUsesPerUser.Int64)
		c.MaxUsesPerUser = &m
	}
	return &c, nil
}

func (r *postgresCatalogRepository) CountCouponUsages(ctx context.Context, couponID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1`, couponID).Scan(&count)
	if err != nil {
		logger.Error("CountCouponUsages: query failed", err, nil)
		return 0, err
	}
	return count, nil
}

func (r *postgresCatalogRepository) CountCouponUsagesByUser(ctx context.Context, couponID, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`, couponID, userID).Scan(&count)
	if err != nil {
		logger.Error("CountCouponUsagesByUser: query failed", err, nil)
		return 0, err
	}
	return count, nil
}

func (r *postgresCatalogRepository) RecordCouponUsage(ctx context.Context, dbops DBTX, usage *domain.CouponUsage) error {
	var maxUses, maxUsesPerUser sql.NullInt64
	lockQuery := `SELECT max_uses, max_uses_per_user FROM coupons WHERE id = $1 FOR UPDATE`
	err := dbops.QueryRowContext(ctx, lockQuery, usage.CouponID).Scan(&maxUses, &maxUsesPerUser)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCouponNotFound
		}
		logger.Error("RecordCouponUsage: failed to lock coupon", err, map[string]interface{}{"coupon_id": usage.CouponID})
		return err
	}

	if maxUses.Valid {
		var used int
		err = dbops.QueryRowContext(ctx, `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1`, usage.CouponID).Scan(&used)
		if err != nil {
			logger.Error("RecordCouponUsage: failed to count usages", err, nil)
			return err
		}
		if int64(used) >= maxUses.Int64 {
			return ErrCouponExhausted
		}
	}
	if maxUsesPerUser.Valid {
		var used int
		err = dbops.QueryRowContext(ctx, `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`,
			usage.CouponID, usage.UserID).Scan(&used)
		if err != nil {
			logger.Error("RecordCouponUsage: failed to count user usages", err, nil)
			return err
		}
		if int64(used) >= maxUsesPerUser.Int64 {
			return ErrCouponUserLimit
		}
	}

	query := `INSERT INTO coupon_usages (coupon_id, user_id, order_id, amount, created_at)
              VALUES ($1, $2, $3, $4, $5) RETURNING id`
	usage.CreatedAt = time.Now()
	err = dbops.QueryRowContext(ctx, query, usage.CouponID, usage.UserID, usage.OrderID, usage.Amount, usage.CreatedAt).
		Scan(&usage.ID)
	if err != nil {
		logger.Error("RecordCouponUsage: failed to insert usage", err, map[string]interface{}{"coupon_id": usage.CouponID})
		return err
	}
	return nil
}
