package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/teamprint-backend/internal/fulfillment"
	"github.com/angelmondragon/teamprint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamprint-backend/pkg/errors"
)

type stubFulfiller struct {
	res  *fulfillment.Result
	err  error
	seen uuid.UUID
}

func (s *stubFulfiller) Fulfill(_ context.Context, orderID uuid.UUID) (*fulfillment.Result, error) {
	s.seen = orderID
	if s.res != nil {
		s.res.OrderID = orderID
	}
	return s.res, s.err
}

type stubResetter struct {
	err  error
	seen uuid.UUID
}

func (s *stubResetter) ResetFulfillment(_ context.Context, orderID uuid.UUID) error {
	s.seen = orderID
	return s.err
}

func decodeFulfillment(t *testing.T, rec *httptest.ResponseRecorder) fulfillmentResponse {
	t.Helper()
	var body fulfillmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func withOrderParam(req *http.Request, id string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestFulfillOrderSuccess(t *testing.T) {
	svc := &stubFulfiller{res: &fulfillment.Result{
		Outcome:           enums.FulfillmentOutcomeSuccess,
		FulfillmentStatus: enums.FulfillmentStatusProcessing,
		ProviderOrderID:   "prov_999",
	}}
	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fulfill-order", strings.NewReader(`{"order_id":"`+id.String()+`"}`))
	rec := httptest.NewRecorder()
	FulfillOrder(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeFulfillment(t, rec)
	if !body.Success || body.FulfillmentReference == nil || *body.FulfillmentReference != "prov_999" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Status != "processing" || body.Outcome != "success" || body.Error != nil {
		t.Fatalf("unexpected body %+v", body)
	}
	if svc.seen != id {
		t.Fatalf("expected order %s got %s", id, svc.seen)
	}
}

func TestFulfillOrderRejectsBadID(t *testing.T) {
	svc := &stubFulfiller{}
	for _, payload := range []string{`{"order_id":"not-a-uuid"}`, `{}`, `{"order_id":"00000000-0000-0000-0000-000000000000"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fulfill-order", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		FulfillOrder(svc, nil).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", payload, rec.Code)
		}
		body := decodeFulfillment(t, rec)
		if body.Success || body.Error == nil || body.Error.Kind != "validation_error" {
			t.Fatalf("%s: unexpected body %+v", payload, body)
		}
	}
	if svc.seen != uuid.Nil {
		t.Fatalf("service must not be called for invalid ids")
	}
}

func TestFulfillOrderByPathMapsErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     string
		wantCode int
	}{
		{"no variants", pkgerrors.New(pkgerrors.CodeNoVariants, "no variants"), fulfillment.KindNoVariantsAvailable, http.StatusUnprocessableEntity},
		{"provider down", pkgerrors.New(pkgerrors.CodeDependency, "provider unavailable"), fulfillment.KindProviderUnavailable, http.StatusServiceUnavailable},
		{"rejected", pkgerrors.New(pkgerrors.CodeProviderRejected, "rejected"), "provider_rejected", http.StatusBadGateway},
		{"not found", pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), fulfillment.KindNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		svc := &stubFulfiller{
			res: &fulfillment.Result{Outcome: enums.FulfillmentOutcomeError, ErrorKind: tt.kind, ErrorMessage: "failed"},
			err: tt.err,
		}
		id := uuid.New()
		req := withOrderParam(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+id.String()+"/fulfill", nil), id.String())
		rec := httptest.NewRecorder()
		FulfillOrderByPath(svc, nil).ServeHTTP(rec, req)

		if rec.Code != tt.wantCode {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.wantCode, rec.Code)
		}
		body := decodeFulfillment(t, rec)
		if body.Success || body.Outcome != "error" || body.Error == nil || body.Error.Kind != tt.kind {
			t.Fatalf("%s: unexpected body %+v", tt.name, body)
		}
		if body.FulfillmentReference != nil {
			t.Fatalf("%s: failed attempt must not report a reference", tt.name)
		}
	}
}

func TestResetFulfillment(t *testing.T) {
	svc := &stubResetter{}
	id := uuid.New()
	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/", nil), id.String())
	rec := httptest.NewRecorder()
	ResetFulfillment(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.seen != id {
		t.Fatalf("expected reset of %s", id)
	}

	svc.err = pkgerrors.New(pkgerrors.CodeStateConflict, "order is not in fulfillment_error")
	rec = httptest.NewRecorder()
	ResetFulfillment(svc, nil).ServeHTTP(rec, withOrderParam(httptest.NewRequest(http.MethodPost, "/", nil), id.String()))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}
