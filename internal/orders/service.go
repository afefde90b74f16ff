package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamprint-backend/pkg/db"
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	"github.com/angelmondragon/teamprint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox"
	"github.com/angelmondragon/teamprint-backend/pkg/outbox/payloads"
)

const (
	maxDiagnosticLen     = 1024
	checkoutSessionIndex = "idx_customer_orders_stripe_session"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// attemptStore is the retry job's per-order attempt counter.
type attemptStore interface {
	AttemptCounterKey(orderID string) string
	Del(ctx context.Context, keys ...string) error
}

// Service owns every write to an order's payment and fulfillment columns.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.CustomerOrder, error)
	AttachCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.CustomerOrder, error)
	FindDesign(ctx context.Context, designID uuid.UUID) (*models.ProductDesign, error)
	Load(ctx context.Context, orderID uuid.UUID) (*Bundle, error)
	MarkPaid(ctx context.Context, confirmation PaymentConfirmation) (bool, error)
	MarkPaymentFailed(ctx context.Context, failure PaymentFailure) (bool, error)
	RecordFulfillment(ctx context.Context, orderID uuid.UUID, reference string, productID *string) (bool, error)
	RecordFulfillmentError(ctx context.Context, orderID uuid.UUID, diagnostic string) error
	ResetFulfillment(ctx context.Context, orderID uuid.UUID) error
	ListRetryable(ctx context.Context, paidBefore time.Time, limit int) ([]models.CustomerOrder, error)
}

// ServiceParams groups the order service dependencies.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	// Attempts is cleared on reset so the retry job starts a fresh budget.
	Attempts attemptStore
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	attempts attemptStore
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order state machine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		attempts: params.Attempts,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Create persists the order, its line items and its shipping address in one
// transaction.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.CustomerOrder, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}
	order := &models.CustomerOrder{
		ID:                uuid.New(),
		Email:             strings.TrimSpace(input.Email),
		FirstName:         strings.TrimSpace(input.FirstName),
		LastName:          strings.TrimSpace(input.LastName),
		Phone:             input.Phone,
		TotalAmount:       input.TotalAmount,
		PaymentStatus:     enums.PaymentStatusPending,
		FulfillmentStatus: enums.FulfillmentStatusPending,
	}
	items := make([]models.OrderLineItem, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		items = append(items, models.OrderLineItem{
			ID:                uuid.New(),
			OrderID:           order.ID,
			ProductDesignID:   item.ProductDesignID,
			ProviderVariantID: item.ProviderVariantID,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice,
			TotalPrice:        item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}
	country := strings.TrimSpace(input.Address.Country)
	if country == "" {
		country = models.DefaultCountry
	}
	address := &models.ShippingAddress{
		ID:        uuid.New(),
		OrderID:   order.ID,
		FirstName: input.Address.FirstName,
		LastName:  input.Address.LastName,
		Address1:  input.Address.Address1,
		Address2:  input.Address.Address2,
		City:      input.Address.City,
		State:     input.Address.State,
		Zip:       input.Address.Zip,
		Country:   country,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if err := repo.CreateLineItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order items")
		}
		if err := repo.CreateShippingAddress(ctx, address); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create shipping address")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) AttachCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id required")
	}
	if err := s.repo.AttachCheckoutSession(ctx, orderID, sessionID); err != nil {
		if db.IsUniqueViolation(err, checkoutSessionIndex) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "checkout session already attached to another order")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach checkout session")
	}
	return nil
}

func (s *service) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.CustomerOrder, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) FindDesign(ctx context.Context, designID uuid.UUID) (*models.ProductDesign, error) {
	design, err := s.repo.FindDesign(ctx, designID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product design not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product design")
	}
	return design, nil
}

// Load reads the order with its items, address and designs. A missing piece
// is reported as not found.
func (s *service) Load(ctx context.Context, orderID uuid.UUID) (*Bundle, error) {
	order, err := s.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.FindLineItems(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has no line items")
	}
	address, err := s.repo.FindShippingAddress(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipping address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shipping address")
	}

	designIDs := distinctDesignIDs(items)
	designs, err := s.repo.FindDesigns(ctx, designIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product designs")
	}
	byID := make(map[uuid.UUID]models.ProductDesign, len(designs))
	for _, design := range designs {
		byID[design.ID] = design
	}
	for _, id := range designIDs {
		if _, ok := byID[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product design not found").
				WithDetails(map[string]any{"product_design_id": id.String()})
		}
	}

	return &Bundle{Order: order, Items: items, Address: address, Designs: byID}, nil
}

// MarkPaid moves a confirmed order to paid and queues order_paid in the same
// transaction. Unknown and already-paid orders are a no-op; the boolean
// reports whether the transition happened.
func (s *service) MarkPaid(ctx context.Context, confirmation PaymentConfirmation) (bool, error) {
	order, err := s.locate(ctx, confirmation.OrderID, confirmation.SessionID, confirmation.PaymentReference)
	if err != nil {
		return false, err
	}
	if order == nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_id":          confirmation.OrderID.String(),
			"stripe_session_id": confirmation.SessionID,
			"payment_reference": confirmation.PaymentReference,
		}), "orders.mark_paid.order_not_found")
		return false, nil
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	if order.PaymentStatus == enums.PaymentStatusPaid {
		s.logg.Info(logCtx, "orders.mark_paid.already_paid")
		return false, nil
	}

	transitioned := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := s.repo.WithTx(tx).MarkPaid(ctx, order.ID, PaymentUpdate{
			PaymentReference: confirmation.PaymentReference,
			SessionID:        confirmation.SessionID,
			At:               s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
		}
		if !changed {
			return nil
		}
		transitioned = true

		sessionID := confirmation.SessionID
		if sessionID == "" && order.StripeSessionID != nil {
			sessionID = *order.StripeSessionID
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateCustomerOrder,
			AggregateID:   order.ID,
			Source:        confirmation.Source,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				PaymentReference: confirmation.PaymentReference,
				StripeSessionID:  sessionID,
			},
		})
	})
	if err != nil {
		return false, err
	}
	if transitioned {
		s.logg.Info(logCtx, "orders.mark_paid.transitioned")
	}
	return transitioned, nil
}

// MarkPaymentFailed records a declined payment. Paid orders are left alone.
func (s *service) MarkPaymentFailed(ctx context.Context, failure PaymentFailure) (bool, error) {
	order, err := s.locate(ctx, failure.OrderID, "", failure.PaymentReference)
	if err != nil {
		return false, err
	}
	if order == nil {
		s.logg.Warn(s.logg.WithField(ctx, "payment_reference", failure.PaymentReference), "orders.payment_failed.order_not_found")
		return false, nil
	}
	changed, err := s.repo.MarkPaymentFailed(ctx, order.ID, PaymentUpdate{PaymentReference: failure.PaymentReference})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment failed")
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	if changed {
		s.logg.Info(logCtx, "orders.payment_failed.recorded")
	} else {
		s.logg.Info(logCtx, "orders.payment_failed.ignored")
	}
	return changed, nil
}

// RecordFulfillment stores the provider order id unless one is already
// present. false means another attempt recorded its reference first.
func (s *service) RecordFulfillment(ctx context.Context, orderID uuid.UUID, reference string, productID *string) (bool, error) {
	if strings.TrimSpace(reference) == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "fulfillment reference required")
	}
	changed, err := s.repo.SetFulfillmentReference(ctx, orderID, reference, productID, s.now())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record fulfillment")
	}
	return changed, nil
}

func (s *service) RecordFulfillmentError(ctx context.Context, orderID uuid.UUID, diagnostic string) error {
	diagnostic = strings.TrimSpace(diagnostic)
	if diagnostic == "" {
		diagnostic = "fulfillment failed"
	}
	diagnostic = clipDiagnostic(diagnostic)
	changed, err := s.repo.SetFulfillmentError(ctx, orderID, diagnostic)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record fulfillment error")
	}
	if !changed {
		s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "orders.fulfillment_error.skipped_fulfilled_order")
	}
	return nil
}

// clipDiagnostic caps d at maxDiagnosticLen bytes without splitting a rune.
func clipDiagnostic(d string) string {
	if len(d) <= maxDiagnosticLen {
		return d
	}
	d = d[:maxDiagnosticLen]
	for len(d) > 0 && !utf8.ValidString(d) {
		d = d[:len(d)-1]
	}
	return d
}

// ResetFulfillment returns an order parked in fulfillment_error to paid so it
// can be attempted again.
func (s *service) ResetFulfillment(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.FindOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if state := StateOf(order); state != StateFulfillmentError {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not in fulfillment_error").
			WithDetails(map[string]any{"state": string(state)})
	}
	// Cleared first: a stale counter would park the order again on the next
	// retry cycle without submitting it.
	if s.attempts != nil {
		if err := s.attempts.Del(ctx, s.attempts.AttemptCounterKey(orderID.String())); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear fulfillment attempts")
		}
	}
	changed, err := s.repo.ClearFulfillmentError(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset fulfillment")
	}
	if !changed {
		return pkgerrors.New(pkgerrors.CodeConflict, "order changed during reset")
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "orders.fulfillment_reset")
	return nil
}

func (s *service) ListRetryable(ctx context.Context, paidBefore time.Time, limit int) ([]models.CustomerOrder, error) {
	orders, err := s.repo.ListRetryable(ctx, paidBefore, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list retryable orders")
	}
	return orders, nil
}

// locate finds an order by id, then session id, then payment reference. A
// nil order with a nil error means nothing matched.
func (s *service) locate(ctx context.Context, orderID uuid.UUID, sessionID, reference string) (*models.CustomerOrder, error) {
	type lookup struct {
		ok   bool
		find func() (*models.CustomerOrder, error)
	}
	lookups := []lookup{
		{ok: orderID != uuid.Nil, find: func() (*models.CustomerOrder, error) { return s.repo.FindOrder(ctx, orderID) }},
		{ok: sessionID != "", find: func() (*models.CustomerOrder, error) { return s.repo.FindOrderBySessionID(ctx, sessionID) }},
		{ok: reference != "", find: func() (*models.CustomerOrder, error) { return s.repo.FindOrderByPaymentReference(ctx, reference) }},
	}
	for _, l := range lookups {
		if !l.ok {
			continue
		}
		order, err := l.find()
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locate order")
		}
	}
	return nil, nil
}

func distinctDesignIDs(items []models.OrderLineItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductDesignID]; ok {
			continue
		}
		seen[item.ProductDesignID] = struct{}{}
		ids = append(ids, item.ProductDesignID)
	}
	return ids
}
