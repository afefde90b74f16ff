package printify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL          = "https://api.printify.com/v1"
	defaultTimeout          = 15 * time.Second
	userAgent               = "teamprint-backend"
	responseBodyLimit int64 = 4096

	OpGetVariants   = "get_variants"
	OpListShops     = "list_shops"
	OpCreateProduct = "create_product"
	OpCreateOrder   = "create_order"
)

// RequestObserver receives the outcome of every provider call.
type RequestObserver interface {
	ObserveProviderRequest(op string, status int, elapsed time.Duration)
}

// Client talks to the Printify REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	observer   RequestObserver

	shopMu sync.Mutex
	shopID string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithShopID pins the shop used for product and order calls. When unset the
// first shop on the account is resolved lazily.
func WithShopID(shopID string) Option {
	return func(c *Client) {
		c.shopID = strings.TrimSpace(shopID)
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func WithRequestObserver(observer RequestObserver) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient builds a client. A blank token is accepted so processes can boot;
// every call then fails with a configuration error.
func NewClient(token string, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		token:      strings.TrimSpace(token),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// GetVariants returns every variant the provider lists for the blueprint and
// print provider pair, in provider order.
func (c *Client) GetVariants(ctx context.Context, blueprintID, printProviderID int64) ([]Variant, error) {
	path := fmt.Sprintf("/catalog/blueprints/%d/print_providers/%d/variants.json?show-out-of-stock=1", blueprintID, printProviderID)

	var apiResp struct {
		Variants []struct {
			ID          int64          `json:"id"`
			Title       string         `json:"title"`
			Options     map[string]any `json:"options"`
			IsAvailable *bool          `json:"is_available"`
			Price       *int64         `json:"price"`
		} `json:"variants"`
	}
	if err := c.do(ctx, OpGetVariants, http.MethodGet, path, nil, &apiResp, false); err != nil {
		return nil, err
	}

	variants := make([]Variant, 0, len(apiResp.Variants))
	for _, v := range apiResp.Variants {
		available := true
		if v.IsAvailable != nil {
			available = *v.IsAvailable
		}
		variants = append(variants, Variant{
			ID:        v.ID,
			Title:     v.Title,
			Size:      optionString(v.Options, "size"),
			Color:     optionString(v.Options, "color"),
			Available: available,
			Price:     v.Price,
		})
	}
	return variants, nil
}

// ShopID returns the configured shop id or resolves the first shop of the
// account.
func (c *Client) ShopID(ctx context.Context) (string, error) {
	c.shopMu.Lock()
	defer c.shopMu.Unlock()
	if c.shopID != "" {
		return c.shopID, nil
	}

	var shops []struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	if err := c.do(ctx, OpListShops, http.MethodGet, "/shops.json", nil, &shops, false); err != nil {
		return "", err
	}
	if len(shops) == 0 {
		return "", &RequestError{Op: OpListShops, Status: http.StatusOK, Err: ErrNoShops}
	}
	c.shopID = strconv.FormatInt(shops[0].ID, 10)
	return c.shopID, nil
}

// CreateProduct creates a shop product and returns its id. It is never
// retried by the client.
func (c *Client) CreateProduct(ctx context.Context, req ProductRequest) (string, error) {
	shopID, err := c.ShopID(ctx)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("/shops/%s/products.json", shopID)
	return c.createWithID(ctx, OpCreateProduct, path, req)
}

// CreateOrder submits an order and returns the provider order id.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	shopID, err := c.ShopID(ctx)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("/shops/%s/orders.json", shopID)
	return c.createWithID(ctx, OpCreateOrder, path, req)
}

func (c *Client) createWithID(ctx context.Context, op, path string, body any) (string, error) {
	var apiResp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, op, http.MethodPost, path, body, &apiResp, true); err != nil {
		return "", err
	}
	if strings.TrimSpace(apiResp.ID) == "" {
		return "", &RequestError{Op: op, Status: http.StatusOK, Err: ErrMissingID}
	}
	return apiResp.ID, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any, shopScoped bool) error {
	if c.token == "" {
		return &RequestError{Op: op, Err: ErrMissingToken}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("User-Agent", userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(op, 0, start)
		return &RequestError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	c.observe(op, resp.StatusCode, start)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
		return &RequestError{
			Op:         op,
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
			shopScoped: shopScoped,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) observe(op string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveProviderRequest(op, status, time.Since(start))
	}
}

func optionString(options map[string]any, key string) string {
	if options == nil {
		return ""
	}
	if value, ok := options[key].(string); ok {
		return value
	}
	return ""
}
