package fulfillment

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/teamprint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
)

// Error kinds reported on failed attempts.
const (
	KindValidation          = "validation"
	KindNotFound            = "not_found"
	KindStateConflict       = "state_conflict"
	KindInProgress          = "in_progress"
	KindLockUnavailable     = "lock_unavailable"
	KindCatalogLookup       = "catalog_lookup"
	KindNoVariantsAvailable = "no_variants_available"
	KindProviderUnavailable = "provider_unavailable"
	KindInternal            = "internal"
)

// Result describes one fulfillment attempt. Only its effect on the order row
// is persisted.
type Result struct {
	OrderID            uuid.UUID
	Outcome            enums.FulfillmentOutcome
	Mode               Mode
	FulfillmentStatus  enums.FulfillmentStatus
	ProviderOrderID    string
	ProviderProductIDs []string
	ErrorKind          string
	ErrorMessage       string
	Diagnostic         string
}

// Succeeded reports whether the order holds a provider reference.
func (r *Result) Succeeded() bool {
	return r != nil && r.Outcome.Succeeded()
}

func kindForCode(code pkgerrors.Code) string {
	switch code {
	case pkgerrors.CodeValidation:
		return KindValidation
	case pkgerrors.CodeNotFound:
		return KindNotFound
	case pkgerrors.CodeStateConflict:
		return KindStateConflict
	case pkgerrors.CodeCatalogLookup:
		return KindCatalogLookup
	case pkgerrors.CodeNoVariants:
		return KindNoVariantsAvailable
	case pkgerrors.CodeDependency:
		return KindProviderUnavailable
	default:
		return KindInternal
	}
}
