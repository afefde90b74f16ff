package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/printify"
)

const defaultCacheTTL = 15 * time.Minute

// Variant is a purchasable provider variant.
type Variant = printify.Variant

type variantSource interface {
	GetVariants(ctx context.Context, blueprintID, printProviderID int64) ([]printify.Variant, error)
}

type variantCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CatalogVariantsKey(blueprintID, printProviderID int64) string
}

// ResolverParams groups the resolver dependencies. Cache is optional.
type ResolverParams struct {
	Source   variantSource
	Cache    variantCache
	CacheTTL time.Duration
	Logger   *logger.Logger
}

// Resolver looks up the purchasable variants of a blueprint/print provider
// pair, caching non-empty results.
type Resolver struct {
	source variantSource
	cache  variantCache
	ttl    time.Duration
	logg   *logger.Logger
}

func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("variant source required")
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Resolver{
		source: params.Source,
		cache:  params.Cache,
		ttl:    ttl,
		logg:   params.Logger,
	}, nil
}

// Resolve returns the available variants in provider order. A failed lookup
// yields CodeCatalogLookup and an empty result yields CodeNoVariants.
func (r *Resolver) Resolve(ctx context.Context, blueprintID, printProviderID int64) ([]Variant, error) {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"blueprint_id":      blueprintID,
		"print_provider_id": printProviderID,
	})

	if cached, ok := r.fromCache(logCtx, blueprintID, printProviderID); ok {
		return cached, nil
	}

	variants, err := r.source.GetVariants(ctx, blueprintID, printProviderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCatalogLookup, err, "catalog lookup failed").
			WithDetails(lookupDetails(blueprintID, printProviderID))
	}
	available := filterAvailable(variants)
	if len(available) == 0 {
		r.logg.Warn(logCtx, "catalog.no_variants_available")
		return nil, pkgerrors.New(pkgerrors.CodeNoVariants, "no variants available for blueprint and print provider").
			WithDetails(lookupDetails(blueprintID, printProviderID))
	}

	r.store(logCtx, blueprintID, printProviderID, available)
	return available, nil
}

func (r *Resolver) fromCache(ctx context.Context, blueprintID, printProviderID int64) ([]Variant, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, r.cache.CatalogVariantsKey(blueprintID, printProviderID))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "catalog.cache_read_failed")
		}
		return nil, false
	}
	var variants []Variant
	if err := json.Unmarshal([]byte(raw), &variants); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "catalog.cache_decode_failed")
		return nil, false
	}
	available := filterAvailable(variants)
	if len(available) == 0 {
		return nil, false
	}
	return available, true
}

func (r *Resolver) store(ctx context.Context, blueprintID, printProviderID int64, variants []Variant) {
	if r.cache == nil {
		return
	}
	payload, err := json.Marshal(variants)
	if err != nil {
		return
	}
	key := r.cache.CatalogVariantsKey(blueprintID, printProviderID)
	if err := r.cache.Set(ctx, key, string(payload), r.ttl); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "catalog.cache_write_failed")
	}
}

func filterAvailable(variants []Variant) []Variant {
	out := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if v.Available && v.ID > 0 {
			out = append(out, v)
		}
	}
	return out
}

func lookupDetails(blueprintID, printProviderID int64) map[string]any {
	return map[string]any{
		"blueprint_id":      blueprintID,
		"print_provider_id": printProviderID,
	}
}

// Preference is one way a caller may ask for a variant. The zero value
// matches nothing.
type Preference struct {
	VariantID int64
	Color     string
}

// PreferVariant builds a preference for an exact provider variant id.
func PreferVariant(id *int64) Preference {
	if id == nil {
		return Preference{}
	}
	return Preference{VariantID: *id}
}

// PreferColor builds a preference for the first variant of a color.
func PreferColor(color *string) Preference {
	if color == nil {
		return Preference{}
	}
	return Preference{Color: strings.TrimSpace(*color)}
}

func (p Preference) empty() bool {
	return p.VariantID == 0 && p.Color == ""
}

func (p Preference) matches(v Variant) bool {
	if p.VariantID != 0 {
		return v.ID == p.VariantID
	}
	return p.Color != "" && strings.EqualFold(strings.TrimSpace(v.Color), p.Color)
}

// Selection is the outcome of Select.
type Selection struct {
	Variant Variant
	// Preferred reports that one of the supplied preferences matched.
	Preferred bool
	// Requested reports that at least one non-empty preference was supplied.
	Requested bool
}

// Select picks the variant for an order line: the first preference present
// in variants wins, otherwise the first variant in provider order.
func Select(variants []Variant, preferences ...Preference) (Selection, error) {
	if len(variants) == 0 {
		return Selection{}, pkgerrors.New(pkgerrors.CodeNoVariants, "no variants to select from")
	}
	requested := false
	for _, pref := range preferences {
		if pref.empty() {
			continue
		}
		requested = true
		for _, v := range variants {
			if pref.matches(v) {
				return Selection{Variant: v, Preferred: true, Requested: true}, nil
			}
		}
	}
	return Selection{Variant: variants[0], Requested: requested}, nil
}
