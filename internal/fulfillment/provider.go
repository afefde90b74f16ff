package fulfillment

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/teamprint-backend/pkg/config"
	"github.com/angelmondragon/teamprint-backend/pkg/printify"
)

// Mode selects how orders are submitted to the provider.
type Mode string

const (
	// ModeInline submits one order carrying blueprint, print provider and
	// variant on each line.
	ModeInline Mode = config.PrintifyModeInline
	// ModeTwoPhase creates a product per design, then an order referencing it.
	ModeTwoPhase Mode = config.PrintifyModeTwoPhase
	// ModeAuto tries inline first and falls back to two-phase when the
	// provider rejects the inline payload.
	ModeAuto Mode = config.PrintifyModeAuto
)

// ParseMode normalizes a configured mode, defaulting to auto.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeInline:
		return ModeInline, nil
	case ModeTwoPhase:
		return ModeTwoPhase, nil
	default:
		return "", fmt.Errorf("unknown fulfillment mode %q", value)
	}
}

// Provider is the subset of the Printify client the orchestrator drives.
type Provider interface {
	CreateProduct(ctx context.Context, req printify.ProductRequest) (string, error)
	CreateOrder(ctx context.Context, req printify.OrderRequest) (string, error)
}

// providerErrorKind labels a failed provider call for logs, metrics and API responses.
func providerErrorKind(err *printify.RequestError) string {
	switch {
	case err.Transient():
		return "provider_unavailable"
	case err.Configuration():
		return "provider_configuration"
	case err.Rejected():
		return "provider_rejected"
	default:
		return "provider_invalid_response"
	}
}
