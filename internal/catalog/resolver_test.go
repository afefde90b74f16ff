package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/printify"
)

type stubSource struct {
	variants []printify.Variant
	err      error
	calls    int
}

func (s *stubSource) GetVariants(ctx context.Context, blueprintID, printProviderID int64) ([]printify.Variant, error) {
	s.calls++
	return s.variants, s.err
}

type memoryCache struct {
	data   map[string]string
	getErr error
	ttl    time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}}
}

func (m *memoryCache) Get(ctx context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	m.ttl = ttl
	return nil
}

func (m *memoryCache) CatalogVariantsKey(blueprintID, printProviderID int64) string {
	return fmt.Sprintf("tp:catalog:variants:%d:%d", blueprintID, printProviderID)
}

func newResolver(t *testing.T, source variantSource, cache variantCache) *Resolver {
	t.Helper()
	params := ResolverParams{Source: source, CacheTTL: time.Minute}
	if cache != nil {
		params.Cache = cache
	}
	r, err := NewResolver(params)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func TestResolveFiltersUnavailableAndKeepsOrder(t *testing.T) {
	source := &stubSource{variants: []printify.Variant{
		{ID: 11, Color: "Black", Available: false},
		{ID: 12, Color: "Navy", Available: true},
		{ID: 13, Color: "Black", Available: true},
	}}
	variants, err := newResolver(t, source, nil).Resolve(context.Background(), 6, 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(variants) != 2 || variants[0].ID != 12 || variants[1].ID != 13 {
		t.Fatalf("unexpected variants %+v", variants)
	}
}

func TestResolveCachesNonEmptyResults(t *testing.T) {
	source := &stubSource{variants: []printify.Variant{{ID: 12, Available: true}}}
	cache := newMemoryCache()
	resolver := newResolver(t, source, cache)

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), 6, 99); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if source.calls != 1 {
		t.Fatalf("expected one live lookup, got %d", source.calls)
	}
	if cache.ttl != time.Minute {
		t.Fatalf("unexpected ttl %s", cache.ttl)
	}
}

func TestResolveFallsThroughOnCacheProblems(t *testing.T) {
	source := &stubSource{variants: []printify.Variant{{ID: 12, Available: true}}}

	broken := newMemoryCache()
	broken.getErr = errors.New("connection refused")
	if _, err := newResolver(t, source, broken).Resolve(context.Background(), 6, 99); err != nil {
		t.Fatalf("redis error should fall through: %v", err)
	}

	garbage := newMemoryCache()
	garbage.data[garbage.CatalogVariantsKey(6, 99)] = "{not json"
	if _, err := newResolver(t, source, garbage).Resolve(context.Background(), 6, 99); err != nil {
		t.Fatalf("decode error should fall through: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected two live lookups, got %d", source.calls)
	}
}

func TestResolveLookupFailure(t *testing.T) {
	source := &stubSource{err: &printify.RequestError{Op: printify.OpGetVariants, Status: 503}}
	_, err := newResolver(t, source, nil).Resolve(context.Background(), 6, 99)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeCatalogLookup {
		t.Fatalf("expected catalog lookup error, got %v", err)
	}
	var reqErr *printify.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("provider error should stay in the chain")
	}
}

func TestResolveNoVariantsIsNeverCached(t *testing.T) {
	source := &stubSource{variants: []printify.Variant{{ID: 11, Available: false}}}
	cache := newMemoryCache()
	_, err := newResolver(t, source, cache).Resolve(context.Background(), 6, 99)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNoVariants {
		t.Fatalf("expected no variants error, got %v", err)
	}
	if len(cache.data) != 0 {
		t.Fatalf("empty results must not be cached")
	}
}

func TestSelect(t *testing.T) {
	variants := []Variant{
		{ID: 12, Color: "Navy", Available: true},
		{ID: 13, Color: "Black", Available: true},
		{ID: 14, Color: "Black", Available: true},
	}
	id := int64(14)
	missing := int64(999)
	black := "black"

	cases := []struct {
		name      string
		prefs     []Preference
		want      int64
		preferred bool
		requested bool
	}{
		{"no preference", nil, 12, false, false},
		{"variant id", []Preference{PreferVariant(&id)}, 14, true, true},
		{"color case insensitive", []Preference{PreferColor(&black)}, 13, true, true},
		{"first match wins", []Preference{PreferVariant(&missing), PreferColor(&black)}, 13, true, true},
		{"missing preference", []Preference{PreferVariant(&missing)}, 12, false, true},
		{"nil preferences", []Preference{PreferVariant(nil), PreferColor(nil)}, 12, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel, err := Select(variants, tc.prefs...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sel.Variant.ID != tc.want || sel.Preferred != tc.preferred || sel.Requested != tc.requested {
				t.Fatalf("unexpected selection %+v", sel)
			}
		})
	}

	if _, err := Select(nil); pkgerrors.CodeOf(err) != pkgerrors.CodeNoVariants {
		t.Fatalf("expected no variants error, got %v", err)
	}
}
