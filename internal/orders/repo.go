package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	"github.com/angelmondragon/teamprint-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gorm-backed order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.CustomerOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreateShippingAddress(ctx context.Context, address *models.ShippingAddress) error {
	return r.db.WithContext(ctx).Create(address).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.CustomerOrder, error) {
	return r.firstOrder(ctx, "id = ?", orderID)
}

func (r *repository) FindOrderBySessionID(ctx context.Context, sessionID string) (*models.CustomerOrder, error) {
	return r.firstOrder(ctx, "stripe_session_id = ?", sessionID)
}

func (r *repository) FindOrderByPaymentReference(ctx context.Context, reference string) (*models.CustomerOrder, error) {
	return r.firstOrder(ctx, "payment_reference = ?", reference)
}

func (r *repository) firstOrder(ctx context.Context, query string, arg any) (*models.CustomerOrder, error) {
	var order models.CustomerOrder
	if err := r.db.WithContext(ctx).Where(query, arg).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindShippingAddress(ctx context.Context, orderID uuid.UUID) (*models.ShippingAddress, error) {
	var address models.ShippingAddress
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&address).Error; err != nil {
		return nil, err
	}
	return &address, nil
}

func (r *repository) FindDesign(ctx context.Context, designID uuid.UUID) (*models.ProductDesign, error) {
	var design models.ProductDesign
	if err := r.db.WithContext(ctx).Where("id = ?", designID).First(&design).Error; err != nil {
		return nil, err
	}
	return &design, nil
}

func (r *repository) FindDesigns(ctx context.Context, designIDs []uuid.UUID) ([]models.ProductDesign, error) {
	if len(designIDs) == 0 {
		return []models.ProductDesign{}, nil
	}
	var designs []models.ProductDesign
	if err := r.db.WithContext(ctx).Where("id IN ?", designIDs).Find(&designs).Error; err != nil {
		return nil, err
	}
	return designs, nil
}

// ListRetryable returns paid orders without a provider reference that are
// not parked in the error state, oldest payment first.
func (r *repository) ListRetryable(ctx context.Context, paidBefore time.Time, limit int) ([]models.CustomerOrder, error) {
	var orders []models.CustomerOrder
	query := r.db.WithContext(ctx).
		Where("payment_status = ?", enums.PaymentStatusPaid).
		Where("fulfillment_reference IS NULL").
		Where("fulfillment_status <> ?", enums.FulfillmentStatusError).
		Where("paid_at IS NOT NULL AND paid_at < ?", paidBefore.UTC()).
		Order("paid_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) AttachCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.CustomerOrder{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"stripe_session_id": sessionID,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// MarkPaid flips payment_status to paid unless it already is. The boolean
// reports whether this call performed the transition.
func (r *repository) MarkPaid(ctx context.Context, orderID uuid.UUID, update PaymentUpdate) (bool, error) {
	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	updates := paymentColumns(update)
	updates["payment_status"] = enums.PaymentStatusPaid
	updates["paid_at"] = at.UTC()
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.CustomerOrder{}).
		Where("id = ? AND payment_status <> ?", orderID, enums.PaymentStatusPaid).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaymentFailed only moves pending orders; a paid order is never downgraded.
func (r *repository) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, update PaymentUpdate) (bool, error) {
	updates := paymentColumns(update)
	updates["payment_status"] = enums.PaymentStatusFailed
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.CustomerOrder{}).
		Where("id = ? AND payment_status = ?", orderID, enums.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetFulfillmentReference records the provider order id only while no
// reference is stored yet.
func (r *repository) SetFulfillmentReference(ctx context.Context, orderID uuid.UUID, reference string, productID *string, at time.Time) (bool, error) {
	updates := map[string]any{
		"fulfillment_reference": reference,
		"fulfillment_status":    enums.FulfillmentStatusProcessing,
		"fulfillment_error":     nil,
		"fulfilled_at":          at.UTC(),
		"updated_at":            time.Now().UTC(),
	}
	if productID != nil && *productID != "" {
		updates["provider_product_id"] = *productID
	}
	res := r.db.WithContext(ctx).
		Model(&models.CustomerOrder{}).
		Where("id = ? AND fulfillment_reference IS NULL", orderID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetFulfillmentError(ctx context.Context, orderID uuid.UUID, diagnostic string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CustomerOrder{}).
		Where("id = ? AND fulfillment_reference IS NULL", orderID).
		Updates(map[string]any{
			"fulfillment_status": enums.FulfillmentStatusError,
			"fulfillment_error":  diagnostic,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ClearFulfillmentError(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CustomerOrder{}).
		Where("id = ? AND fulfillment_status = ? AND fulfillment_reference IS NULL", orderID, enums.FulfillmentStatusError).
		Updates(map[string]any{
			"fulfillment_status": enums.FulfillmentStatusPending,
			"fulfillment_error":  nil,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func paymentColumns(update PaymentUpdate) map[string]any {
	updates := map[string]any{}
	if update.PaymentReference != "" {
		updates["payment_reference"] = update.PaymentReference
	}
	if update.SessionID != "" {
		updates["stripe_session_id"] = update.SessionID
	}
	return updates
}
