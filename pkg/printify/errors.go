package printify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrMissingToken is returned by every call when no API token is configured.
	ErrMissingToken = errors.New("printify api token is not configured")
	// ErrNoShops is returned when shop resolution finds no shop on the account.
	ErrNoShops = errors.New("printify account has no shops")
	// ErrMissingID is returned when a successful response carries no identifier.
	ErrMissingID = errors.New("printify response did not include an id")
)

// RequestError describes a failed provider call. Status is zero when the
// request never produced a response.
type RequestError struct {
	Op     string
	Status int
	Body   string
	Err    error

	shopScoped bool
}

func (e *RequestError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("printify %s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("printify %s: status %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("printify %s: %v", e.Op, e.Err)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Transient reports failures worth retrying later: network errors, timeouts,
// rate limiting and server errors. A request that could not be built never
// reached the network and is not transient.
func (e *RequestError) Transient() bool {
	if e == nil {
		return false
	}
	if e.Status == 0 {
		return transport(e.Err)
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

func transport(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}

// Configuration reports failures caused by credentials or shop setup rather
// than by the request content.
func (e *RequestError) Configuration() bool {
	if e == nil {
		return false
	}
	if errors.Is(e.Err, ErrMissingToken) || errors.Is(e.Err, ErrNoShops) {
		return true
	}
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusNotFound:
		return e.shopScoped
	}
	return false
}

// Rejected reports a 4xx business-rule rejection of the request payload.
func (e *RequestError) Rejected() bool {
	if e == nil {
		return false
	}
	return e.Status >= http.StatusBadRequest &&
		e.Status < http.StatusInternalServerError &&
		e.Status != http.StatusTooManyRequests &&
		!e.Configuration()
}

// AsRequestError unwraps err into a *RequestError when possible.
func AsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}
