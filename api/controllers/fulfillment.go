package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/teamprint-backend/api/responses"
	"github.com/angelmondragon/teamprint-backend/api/validators"
	"github.com/angelmondragon/teamprint-backend/internal/fulfillment"
	"github.com/angelmondragon/teamprint-backend/internal/orders"
	"github.com/angelmondragon/teamprint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

type orderFulfiller interface {
	Fulfill(ctx context.Context, orderID uuid.UUID) (*fulfillment.Result, error)
}

type fulfillmentResetter interface {
	ResetFulfillment(ctx context.Context, orderID uuid.UUID) error
}

type fulfillOrderRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

type fulfillmentResponse struct {
	Success              bool                 `json:"success"`
	OrderID              string               `json:"order_id"`
	FulfillmentReference *string              `json:"fulfillment_reference,omitempty"`
	Status               string               `json:"status,omitempty"`
	Outcome              string               `json:"outcome"`
	Error                *fulfillmentErrorDTO `json:"error,omitempty"`
}

type fulfillmentErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// FulfillOrder accepts {"order_id": "..."} in the body.
func FulfillOrder(svc orderFulfiller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload fulfillOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			writeFulfillment(r.Context(), logg, w, nil, err)
			return
		}
		runFulfillment(w, r, svc, logg, payload.OrderID)
	}
}

// FulfillOrderByPath reads the order id from the {orderId} path segment.
func FulfillOrderByPath(svc orderFulfiller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runFulfillment(w, r, svc, logg, chi.URLParam(r, "orderId"))
	}
}

// ResetFulfillment moves an order parked in fulfillment_error back to paid.
func ResetFulfillment(svc fulfillmentResetter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ResetFulfillment(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"order_id": orderID.String(),
			"state":    string(orders.StatePaid),
		})
	}
}

func runFulfillment(w http.ResponseWriter, r *http.Request, svc orderFulfiller, logg *logger.Logger, rawID string) {
	if svc == nil {
		writeFulfillment(r.Context(), logg, w, nil, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
		return
	}
	orderID, err := parseOrderID(rawID)
	if err != nil {
		writeFulfillment(r.Context(), logg, w, nil, err)
		return
	}
	res, err := svc.Fulfill(r.Context(), orderID)
	writeFulfillment(r.Context(), logg, w, res, err)
}

func parseOrderID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id must be a valid uuid")
	}
	return id, nil
}

// writeFulfillment always answers with the fulfillment shape; the HTTP
// status carries the error class.
func writeFulfillment(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, res *fulfillment.Result, err error) {
	body := fulfillmentResponse{Outcome: string(enums.FulfillmentOutcomeError)}
	if res != nil {
		body.OrderID = res.OrderID.String()
		body.Outcome = string(res.Outcome)
		body.Status = string(res.FulfillmentStatus)
		if res.ProviderOrderID != "" {
			ref := res.ProviderOrderID
			body.FulfillmentReference = &ref
		}
	}
	if err == nil {
		body.Success = res.Succeeded()
		responses.WriteJSON(w, http.StatusOK, body)
		return
	}

	body.Error = &fulfillmentErrorDTO{Kind: fulfillment.KindInternal, Message: err.Error()}
	if res != nil && res.ErrorKind != "" {
		body.Error.Kind = res.ErrorKind
		body.Error.Message = res.ErrorMessage
	} else if typed := pkgerrors.As(err); typed != nil {
		body.Error.Kind = strings.ToLower(string(typed.Code()))
		body.Error.Message = typed.Message()
	}
	meta := pkgerrors.MetadataFor(pkgerrors.CodeOf(err))
	if meta.HTTPStatus >= http.StatusInternalServerError {
		logg.Error(ctx, "fulfillment.request_failed", err)
	}
	responses.WriteJSON(w, meta.HTTPStatus, body)
}
