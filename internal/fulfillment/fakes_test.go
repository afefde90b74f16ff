package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/teamprint-backend/internal/catalog"
	"github.com/angelmondragon/teamprint-backend/internal/orders"
	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
	"github.com/angelmondragon/teamprint-backend/pkg/enums"
	"github.com/angelmondragon/teamprint-backend/pkg/printify"
)

func ptr[T any](v T) *T { return &v }

// memoryOrders keeps one order bundle in memory and mimics the conditional
// writes of the order service.
type memoryOrders struct {
	mu          sync.Mutex
	bundle      *orders.Bundle
	recordCalls int
	recordErr   error
	// storedFirst is written just before the conditional update, as if
	// another attempt won the race.
	storedFirst *string
}

func newMemoryOrders(bundle *orders.Bundle) *memoryOrders {
	return &memoryOrders{bundle: bundle}
}

func (m *memoryOrders) Load(ctx context.Context, orderID uuid.UUID) (*orders.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := *m.bundle.Order
	copied := *m.bundle
	copied.Order = &order
	return &copied, nil
}

func (m *memoryOrders) RecordFulfillment(ctx context.Context, orderID uuid.UUID, reference string, productID *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordCalls++
	if m.recordErr != nil {
		return false, m.recordErr
	}
	if m.storedFirst != nil && m.bundle.Order.FulfillmentReference == nil {
		m.bundle.Order.FulfillmentReference = m.storedFirst
		m.bundle.Order.FulfillmentStatus = enums.FulfillmentStatusProcessing
	}
	if m.bundle.Order.FulfillmentReference != nil {
		return false, nil
	}
	m.bundle.Order.FulfillmentReference = &reference
	m.bundle.Order.ProviderProductID = productID
	m.bundle.Order.FulfillmentStatus = enums.FulfillmentStatusProcessing
	return true, nil
}

func (m *memoryOrders) RecordFulfillmentError(ctx context.Context, orderID uuid.UUID, diagnostic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundle.Order.FulfillmentStatus = enums.FulfillmentStatusError
	m.bundle.Order.FulfillmentError = &diagnostic
	return nil
}

func (m *memoryOrders) order() models.CustomerOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bundle.Order
}

type fixedResolver struct {
	variants []catalog.Variant
	err      error
	calls    int
}

func (r *fixedResolver) Resolve(ctx context.Context, blueprintID, printProviderID int64) ([]catalog.Variant, error) {
	r.calls++
	return r.variants, r.err
}

// fakeProvider records calls. orderErrs and productErrs are consumed in order
// before falling back to success.
type fakeProvider struct {
	mu          sync.Mutex
	orderErrs   []error
	productErrs []error
	orders      []printify.OrderRequest
	products    []printify.ProductRequest
	delay       time.Duration
}

func (p *fakeProvider) CreateProduct(ctx context.Context, req printify.ProductRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.products = append(p.products, req)
	if len(p.productErrs) > 0 {
		err := p.productErrs[0]
		p.productErrs = p.productErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("prod_%d", len(p.products)), nil
}

func (p *fakeProvider) CreateOrder(ctx context.Context, req printify.OrderRequest) (string, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, req)
	if len(p.orderErrs) > 0 {
		err := p.orderErrs[0]
		p.orderErrs = p.orderErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("prov_%d", len(p.orders)), nil
}

func (p *fakeProvider) orderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders)
}

// memoryRedis implements the lock and memo stores.
type memoryRedis struct {
	mu      sync.Mutex
	data    map[string]string
	extends int
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}}
}

func (m *memoryRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) ReleaseIfOwner(ctx context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != token {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryRedis) ExtendIfOwner(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != token {
		return false, nil
	}
	m.extends++
	return true, nil
}

func (m *memoryRedis) extendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extends
}

func (m *memoryRedis) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryRedis) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryRedis) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memoryRedis) FulfillmentLockKey(orderID string) string { return "tp:lock:fulfillment:" + orderID }
func (m *memoryRedis) ProductMemoKey(orderID string) string     { return "tp:memo:product:" + orderID }
func (m *memoryRedis) OrderMemoKey(orderID string) string       { return "tp:memo:order:" + orderID }

type recordedOutcome struct {
	outcome string
	kind    string
}

type outcomeSink struct {
	mu       sync.Mutex
	outcomes []recordedOutcome
}

func (s *outcomeSink) ObserveOutcome(outcome, errorKind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, recordedOutcome{outcome: outcome, kind: errorKind})
}

func paidBundle() *orders.Bundle {
	orderID := uuid.New()
	designID := uuid.New()
	order := &models.CustomerOrder{
		ID:                orderID,
		Email:             "coach@example.com",
		FirstName:         "Dana",
		LastName:          "Reyes",
		PaymentStatus:     enums.PaymentStatusPaid,
		FulfillmentStatus: enums.FulfillmentStatusPending,
	}
	design := models.ProductDesign{
		ID:              designID,
		Name:            "Team Cap",
		ProductType:     "hat",
		BlueprintID:     1446,
		PrintProviderID: 217,
		ArtworkImageID:  "img_1",
	}
	item := models.OrderLineItem{
		ID:              uuid.New(),
		OrderID:         orderID,
		ProductDesignID: designID,
		Quantity:        2,
		UnitPrice:       decimal.RequireFromString("25.00"),
		TotalPrice:      decimal.RequireFromString("50.00"),
	}
	return &orders.Bundle{
		Order: order,
		Items: []models.OrderLineItem{item},
		Address: &models.ShippingAddress{
			OrderID:   orderID,
			FirstName: "Dana",
			LastName:  "Reyes",
			Address1:  "1 Harbor Way",
			City:      "Boston",
			State:     "MA",
			Zip:       "02118",
			Country:   "US",
		},
		Designs: map[uuid.UUID]models.ProductDesign{designID: design},
	}
}

var errNetwork = &url.Error{Op: "Post", URL: "http://printify.test/v1/shops/42/orders.json", Err: errors.New("dial tcp: connection refused")}
