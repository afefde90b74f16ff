package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataTable(t *testing.T) {
	want := map[Code]Metadata{
		CodeValidation:       {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true, ExposeMessage: true},
		CodeUnauthorized:     {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ExposeMessage: true},
		CodeNotFound:         {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ExposeMessage: true},
		CodeStateConflict:    {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true, ExposeMessage: true},
		CodeInternal:         {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:       {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
		CodeCatalogLookup:    {HTTPStatus: http.StatusBadGateway, PublicMessage: "catalog lookup failed", DetailsAllowed: true},
		CodeProviderRejected: {HTTPStatus: http.StatusBadGateway, PublicMessage: "fulfillment provider rejected the request", DetailsAllowed: true},
		"SOMETHING_UNKNOWN":  {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
	}
	for code, expected := range want {
		if got := MetadataFor(code); got != expected {
			t.Fatalf("%s: expected %+v got %+v", code, expected, got)
		}
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing order_id")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing order_id" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	base.WithDetails(map[string]any{"field": "order_id"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "printify unreachable")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: printify unreachable: boom" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestCodeOfAndRetryable(t *testing.T) {
	wrapped := fmt.Errorf("attempt: %w", New(CodeDependency, "timeout"))
	if CodeOf(wrapped) != CodeDependency {
		t.Fatalf("expected dependency code through fmt wrapping")
	}
	if !IsRetryable(wrapped) {
		t.Fatalf("dependency errors are retryable")
	}
	if IsRetryable(New(CodeProviderRejected, "bad variant")) {
		t.Fatalf("provider rejections are fatal")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeNotFound, "order missing")
	if got := As(err); got == nil || got.Code() != CodeNotFound {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCapturesPgDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_session", TableName: "customer_orders", Message: "duplicate key value"}
	err := Wrap(CodeConflict, pgErr, "insert order")

	dump := Dump(err)
	if dump.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", dump.Code)
	}
	if dump.PGCode != "23505" || dump.PGConstraint != "ux_orders_session" {
		t.Fatalf("pg details missing: %+v", dump)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two entries in chain, got %d", len(dump.Chain))
	}
	if Dump(nil).TopMessage != "" {
		t.Fatalf("nil dump should be empty")
	}
}

func TestPostgresReadsLibPQErrors(t *testing.T) {
	pqErr := &pq.Error{Code: "42P07", Table: "customer_orders", Message: `relation "customer_orders" already exists`}
	err := fmt.Errorf("goose up: %w", pqErr)

	pg, ok := Postgres(err)
	if !ok {
		t.Fatal("expected lib/pq error to be recognised")
	}
	if pg.Code != "42P07" || pg.Table != "customer_orders" {
		t.Fatalf("unexpected details: %+v", pg)
	}
	if _, ok := Postgres(fmt.Errorf("plain")); ok {
		t.Fatal("plain errors carry no postgres details")
	}
}

func TestIsAndNewf(t *testing.T) {
	err := fmt.Errorf("checkout: %w", Newf(CodeNotFound, "design %s not found", "d-1"))
	if !Is(err, CodeNotFound) {
		t.Fatalf("expected wrapped not found to match")
	}
	if Is(err, CodeConflict) || Is(nil, CodeInternal) {
		t.Fatalf("unexpected match")
	}
	if !Is(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors count as internal")
	}
	if As(err).Message() != "design d-1 not found" {
		t.Fatalf("unexpected message %q", As(err).Message())
	}
}
