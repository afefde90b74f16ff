package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamprint-backend/internal/catalog"
	"github.com/angelmondragon/teamprint-backend/internal/orders"
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	"github.com/angelmondragon/teamprint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/printify"
)

type orderStore interface {
	Load(ctx context.Context, orderID uuid.UUID) (*orders.Bundle, error)
	RecordFulfillment(ctx context.Context, orderID uuid.UUID, reference string, productID *string) (bool, error)
	RecordFulfillmentError(ctx context.Context, orderID uuid.UUID, diagnostic string) error
}

type variantResolver interface {
	Resolve(ctx context.Context, blueprintID, printProviderID int64) ([]catalog.Variant, error)
}

type orderLocker interface {
	Acquire(ctx context.Context, orderID uuid.UUID) (func(), error)
}

type outcomeRecorder interface {
	ObserveOutcome(outcome, errorKind string)
}

// ServiceParams groups the orchestrator dependencies. Memo and Metrics are
// optional.
type ServiceParams struct {
	Orders   orderStore
	Resolver variantResolver
	Provider Provider
	Locker   orderLocker
	Memo     memoStore
	MemoTTL  time.Duration
	Mode     Mode
	Metrics  outcomeRecorder
	Logger   *logger.Logger
}

// Service runs fulfillment attempts for paid orders.
type Service struct {
	orders   orderStore
	resolver variantResolver
	provider Provider
	locker   orderLocker
	memo     *memo
	mode     Mode
	metrics  outcomeRecorder
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("variant resolver required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("fulfillment provider required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("order locker required")
	}
	mode, err := ParseMode(string(params.Mode))
	if err != nil {
		return nil, err
	}
	svc := &Service{
		orders:   params.Orders,
		resolver: params.Resolver,
		provider: params.Provider,
		locker:   params.Locker,
		mode:     mode,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}
	if params.Memo != nil {
		svc.memo = newMemo(params.Memo, params.MemoTTL)
	}
	return svc, nil
}

// Fulfill submits a paid order to the provider at most once. An already
// fulfilled order returns its stored reference. Transient provider failures
// return a retryable CodeDependency error and leave the order paid; provider
// rejections park the order in fulfillment_error.
func (s *Service) Fulfill(ctx context.Context, orderID uuid.UUID) (*Result, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	started := time.Now()
	res := &Result{OrderID: orderID, Mode: s.mode}

	err := s.fulfill(ctx, res)
	if err != nil {
		res.Outcome = enums.FulfillmentOutcomeError
		if res.ErrorKind == "" {
			res.ErrorKind = kindForCode(pkgerrors.CodeOf(err))
		}
		if res.ErrorMessage == "" {
			res.ErrorMessage = publicMessage(err)
		}
	}
	s.report(ctx, res, err, time.Since(started))
	return res, err
}

func (s *Service) fulfill(ctx context.Context, res *Result) error {
	if res.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	bundle, err := s.orders.Load(ctx, res.OrderID)
	if err != nil {
		return err
	}
	if done, err := s.precheck(res, bundle.Order); done || err != nil {
		return err
	}

	release, err := s.locker.Acquire(ctx, res.OrderID)
	if err != nil {
		if errors.Is(err, ErrLockBusy) {
			res.ErrorKind = KindInProgress
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfillment already in progress")
		}
		res.ErrorKind = KindLockUnavailable
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire fulfillment lock")
	}
	defer release()

	// Another worker may have finished while this one waited for the lock.
	bundle, err = s.orders.Load(ctx, res.OrderID)
	if err != nil {
		return err
	}
	if done, err := s.precheck(res, bundle.Order); done || err != nil {
		return err
	}
	if reconciled := s.reconcile(ctx, res); reconciled {
		return nil
	}

	selections, err := s.selectVariants(ctx, bundle)
	if err != nil {
		return err
	}

	reference, products, outcome, err := s.submit(ctx, bundle, selections)
	res.ProviderProductIDs = productIDsInOrder(bundle, products)
	if err != nil {
		return s.providerFailure(ctx, res, err)
	}

	res.Outcome = outcome
	res.ProviderOrderID = reference
	res.FulfillmentStatus = enums.FulfillmentStatusProcessing
	s.record(ctx, res)
	return nil
}

// precheck reports done when the order already carries a provider reference
// and rejects orders that are not waiting for fulfillment.
func (s *Service) precheck(res *Result, order *models.CustomerOrder) (bool, error) {
	res.FulfillmentStatus = order.FulfillmentStatus
	if order.IsFulfilled() {
		res.Outcome = enums.FulfillmentOutcomeAlreadyFulfilled
		res.ProviderOrderID = *order.FulfillmentReference
		return true, nil
	}
	state := orders.StateOf(order)
	if state != orders.StatePaid {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s, not paid", state)).
			WithDetails(map[string]any{"state": string(state)})
	}
	return false, nil
}

// reconcile records a provider order remembered from an earlier attempt whose
// reference write failed.
func (s *Service) reconcile(ctx context.Context, res *Result) bool {
	reference, err := s.memo.providerOrder(ctx, res.OrderID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "fulfillment.memo_read_failed")
		return false
	}
	if reference == "" {
		return false
	}
	s.logg.Info(s.logg.WithField(ctx, "provider_order_id", reference), "fulfillment.reconciled_from_memo")
	res.Outcome = enums.FulfillmentOutcomeAlreadyFulfilled
	res.ProviderOrderID = reference
	res.FulfillmentStatus = enums.FulfillmentStatusProcessing
	s.record(ctx, res)
	return true
}

func (s *Service) selectVariants(ctx context.Context, bundle *orders.Bundle) (map[uuid.UUID]int64, error) {
	byDesign := make(map[uuid.UUID][]catalog.Variant)
	selections := make(map[uuid.UUID]int64, len(bundle.Items))
	for _, item := range bundle.Items {
		design, ok := bundle.Design(item)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product design not found")
		}
		variants, ok := byDesign[design.ID]
		if !ok {
			resolved, err := s.resolver.Resolve(ctx, design.BlueprintID, design.PrintProviderID)
			if err != nil {
				return nil, err
			}
			variants = resolved
			byDesign[design.ID] = variants
		}
		sel, err := catalog.Select(variants,
			catalog.PreferVariant(item.ProviderVariantID),
			catalog.PreferVariant(design.DefaultVariantID),
			catalog.PreferColor(design.DefaultColor),
		)
		if err != nil {
			return nil, err
		}
		if sel.Requested && !sel.Preferred {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"order_item_id": item.ID.String(),
				"variant_id":    sel.Variant.ID,
			}), "fulfillment.variant_preference_unavailable")
		}
		selections[item.ID] = sel.Variant.ID
	}
	return selections, nil
}

func (s *Service) submit(ctx context.Context, bundle *orders.Bundle, selections map[uuid.UUID]int64) (string, map[uuid.UUID]string, enums.FulfillmentOutcome, error) {
	switch s.mode {
	case ModeInline:
		ref, err := s.provider.CreateOrder(ctx, BuildOrderPayload(bundle, selections, nil))
		return ref, nil, enums.FulfillmentOutcomeSuccess, err
	case ModeTwoPhase:
		return s.submitTwoPhase(ctx, bundle, selections, enums.FulfillmentOutcomeSuccess)
	}

	ref, err := s.provider.CreateOrder(ctx, BuildOrderPayload(bundle, selections, nil))
	if err == nil {
		return ref, nil, enums.FulfillmentOutcomeSuccess, nil
	}
	reqErr, ok := printify.AsRequestError(err)
	if !ok || !reqErr.Rejected() {
		return "", nil, enums.FulfillmentOutcomeError, err
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"status": reqErr.Status,
		"body":   reqErr.Body,
	}), "fulfillment.inline_rejected_falling_back")
	return s.submitTwoPhase(ctx, bundle, selections, enums.FulfillmentOutcomeFallback)
}

// submitTwoPhase creates one product per design, then the order. Products
// already created for this order are reused. A failure after any product was
// created is logged with the product ids; nothing is rolled back remotely.
func (s *Service) submitTwoPhase(ctx context.Context, bundle *orders.Bundle, selections map[uuid.UUID]int64, outcome enums.FulfillmentOutcome) (string, map[uuid.UUID]string, enums.FulfillmentOutcome, error) {
	products, err := s.memo.products(ctx, bundle.Order.ID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "fulfillment.memo_read_failed")
	}

	for _, group := range groupByDesign(bundle, selections) {
		if products[group.design.ID] != "" {
			continue
		}
		req := BuildProductPayload(bundle.Order, group.design, group.variantIDs, group.unitPrice)
		productID, err := s.provider.CreateProduct(ctx, req)
		if err != nil {
			s.logPartial(ctx, products, "create_product", err)
			return "", products, enums.FulfillmentOutcomeError, err
		}
		products[group.design.ID] = productID
		if err := s.memo.rememberProducts(ctx, bundle.Order.ID, products); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "fulfillment.memo_write_failed")
		}
	}

	ref, err := s.provider.CreateOrder(ctx, BuildOrderPayload(bundle, selections, products))
	if err != nil {
		s.logPartial(ctx, products, "create_order", err)
		return "", products, enums.FulfillmentOutcomeError, err
	}
	return ref, products, outcome, nil
}

func (s *Service) logPartial(ctx context.Context, products map[uuid.UUID]string, step string, err error) {
	if len(products) == 0 {
		return
	}
	ids := make([]string, 0, len(products))
	for _, id := range products {
		ids = append(ids, id)
	}
	s.logg.Error(s.logg.WithFields(ctx, map[string]any{
		"failed_step":          step,
		"provider_product_ids": ids,
	}), "fulfillment.two_phase_partial_failure", err)
}

// providerFailure classifies a failed provider call. Transient failures leave
// the order untouched; every other failure is written as a diagnostic.
func (s *Service) providerFailure(ctx context.Context, res *Result, err error) error {
	reqErr, ok := printify.AsRequestError(err)
	if !ok || reqErr.Transient() {
		res.ErrorKind = KindProviderUnavailable
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfillment provider unavailable")
	}

	res.ErrorKind = providerErrorKind(reqErr)
	res.Diagnostic = reqErr.Error()
	if writeErr := s.orders.RecordFulfillmentError(ctx, res.OrderID, res.Diagnostic); writeErr != nil {
		s.logg.Error(ctx, "fulfillment.record_error_failed", writeErr)
	} else {
		res.FulfillmentStatus = enums.FulfillmentStatusError
	}
	return pkgerrors.Wrap(pkgerrors.CodeProviderRejected, err, "fulfillment provider rejected the order").
		WithDetails(map[string]any{"op": reqErr.Op, "status": reqErr.Status})
}

// record persists a successful reference. The provider order exists either
// way, so a failed write is logged and the reference is kept in the memo for
// the next attempt.
func (s *Service) record(ctx context.Context, res *Result) {
	if err := s.memo.rememberProviderOrder(ctx, res.OrderID, res.ProviderOrderID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "fulfillment.memo_write_failed")
	}
	var productID *string
	if len(res.ProviderProductIDs) > 0 {
		productID = &res.ProviderProductIDs[0]
	}
	changed, err := s.orders.RecordFulfillment(ctx, res.OrderID, res.ProviderOrderID, productID)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "provider_order_id", res.ProviderOrderID), "fulfillment.record_failed", err)
		return
	}
	if !changed {
		s.adoptStoredReference(ctx, res)
	}
	if err := s.memo.forget(ctx, res.OrderID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "fulfillment.memo_clear_failed")
	}
}

// adoptStoredReference reports the reference another attempt recorded first.
// The provider order submitted by this attempt is logged for manual cleanup.
func (s *Service) adoptStoredReference(ctx context.Context, res *Result) {
	submitted := res.ProviderOrderID
	res.Outcome = enums.FulfillmentOutcomeAlreadyFulfilled
	bundle, err := s.orders.Load(ctx, res.OrderID)
	if err == nil && bundle != nil && bundle.Order.IsFulfilled() {
		res.ProviderOrderID = *bundle.Order.FulfillmentReference
		res.FulfillmentStatus = bundle.Order.FulfillmentStatus
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"provider_order_id":  res.ProviderOrderID,
		"discarded_order_id": submitted,
	})
	if err != nil {
		s.logg.Error(logCtx, "fulfillment.reference_reload_failed", err)
		return
	}
	if submitted != res.ProviderOrderID {
		s.logg.Warn(logCtx, "fulfillment.duplicate_provider_order")
		return
	}
	s.logg.Warn(logCtx, "fulfillment.reference_already_set")
}

func (s *Service) report(ctx context.Context, res *Result, err error, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveOutcome(string(res.Outcome), res.ErrorKind)
	}
	fields := map[string]any{
		"outcome":     string(res.Outcome),
		"mode":        string(res.Mode),
		"duration_ms": elapsed.Milliseconds(),
	}
	if res.ProviderOrderID != "" {
		fields["provider_order_id"] = res.ProviderOrderID
	}
	if len(res.ProviderProductIDs) > 0 {
		fields["provider_product_ids"] = res.ProviderProductIDs
	}
	if res.ErrorKind != "" {
		fields["error_kind"] = res.ErrorKind
	}
	logCtx := s.logg.WithFields(ctx, fields)
	switch {
	case err == nil:
		s.logg.Info(logCtx, "fulfillment.attempt_completed")
	case pkgerrors.IsRetryable(err):
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "fulfillment.attempt_deferred")
	default:
		s.logg.Error(logCtx, "fulfillment.attempt_failed", err)
	}
}

type designGroup struct {
	design     models.ProductDesign
	variantIDs []int64
	unitPrice  decimal.Decimal
}

func groupByDesign(bundle *orders.Bundle, selections map[uuid.UUID]int64) []designGroup {
	index := make(map[uuid.UUID]int)
	var groups []designGroup
	for _, item := range bundle.Items {
		design, ok := bundle.Design(item)
		if !ok {
			continue
		}
		pos, seen := index[design.ID]
		if !seen {
			pos = len(groups)
			index[design.ID] = pos
			groups = append(groups, designGroup{design: design, unitPrice: item.UnitPrice})
		}
		groups[pos].variantIDs = append(groups[pos].variantIDs, selections[item.ID])
	}
	return groups
}

func productIDsInOrder(bundle *orders.Bundle, products map[uuid.UUID]string) []string {
	if len(products) == 0 {
		return nil
	}
	var ids []string
	seen := map[uuid.UUID]bool{}
	for _, item := range bundle.Items {
		if seen[item.ProductDesignID] {
			continue
		}
		seen[item.ProductDesignID] = true
		if id := products[item.ProductDesignID]; id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func publicMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}
