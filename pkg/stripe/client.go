package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/angelmondragon/teamprint-backend/pkg/config"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// accepted secret and restricted key prefixes per mode.
var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

var (
	ErrMissingAPIKey        = errors.New("stripe: api key not configured")
	ErrMissingWebhookSecret = errors.New("stripe: webhook signing secret not configured")
)

// Client holds the process-wide Stripe settings used by checkout and the
// webhook endpoint.
type Client struct {
	mode          Mode
	currency      string
	webhookSecret string
}

// NewClient checks the configured key against the requested mode and installs
// it as the package-level Stripe key.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, err := parseMode(cfg.Environment())
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case key == "":
		return nil, ErrMissingAPIKey
	case secret == "":
		return nil, ErrMissingWebhookSecret
	case !keyMatchesMode(mode, key):
		return nil, fmt.Errorf("stripe: %s mode requires one of %v keys", mode, keyPrefixes[mode])
	}

	stripe.Key = key
	c := &Client{
		mode:          mode,
		currency:      strings.ToLower(strings.TrimSpace(cfg.Currency)),
		webhookSecret: secret,
	}
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"mode": string(mode), "currency": c.Currency()})
		logg.Info(ctx, "stripe.configured")
	}
	return c, nil
}

// Mode reports whether test or live keys are in use.
func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// Currency is the lowercase ISO code charged at checkout. Defaults to usd.
func (c *Client) Currency() string {
	if c == nil || c.currency == "" {
		return string(stripe.CurrencyUSD)
	}
	return c.currency
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// CreateCheckoutSession opens a hosted checkout session bound to ctx.
func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if c == nil {
		return nil, ErrMissingAPIKey
	}
	if params == nil {
		params = &stripe.CheckoutSessionParams{}
	}
	params.Context = ctx
	return session.New(params)
}

func parseMode(raw string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if mode == "" {
		return ModeTest, nil
	}
	if _, ok := keyPrefixes[mode]; !ok {
		return "", fmt.Errorf("stripe: unknown mode %q", raw)
	}
	return mode, nil
}

func keyMatchesMode(mode Mode, key string) bool {
	for _, prefix := range keyPrefixes[mode] {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
