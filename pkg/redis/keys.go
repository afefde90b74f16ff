package redis

import (
	"strconv"
	"strings"
)

// Every key lives under the "tp" namespace followed by a concern prefix.
const (
	keyNamespace = "tp"

	prefixIdempotency = "idempotency"
	prefixCatalog     = "catalog"
	prefixLock        = "lock"
	prefixMemo        = "memo"
	prefixCounter     = "counter"
)

func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey addresses a processed marker or cached response.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key(prefixIdempotency, scope, id)
}

// CatalogVariantsKey addresses the cached variants of a blueprint and print
// provider pair.
func (c *Client) CatalogVariantsKey(blueprintID, printProviderID int64) string {
	return key(prefixCatalog, "variants", strconv.FormatInt(blueprintID, 10), strconv.FormatInt(printProviderID, 10))
}

func (c *Client) FulfillmentLockKey(orderID string) string {
	return key(prefixLock, "fulfillment", orderID)
}

func (c *Client) CronLockKey(job string) string {
	return key(prefixLock, "cron", job)
}

// ProductMemoKey holds the provider product created for an order so a retried
// two-phase submission reuses it.
func (c *Client) ProductMemoKey(orderID string) string {
	return key(prefixMemo, "product", orderID)
}

// OrderMemoKey holds a provider order id until it is persisted on the order.
func (c *Client) OrderMemoKey(orderID string) string {
	return key(prefixMemo, "order", orderID)
}

func (c *Client) AttemptCounterKey(orderID string) string {
	return key(prefixCounter, "fulfillment_attempts", orderID)
}
