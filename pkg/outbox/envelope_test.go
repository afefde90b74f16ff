package outbox

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewEnvelopeDefaults(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	env, err := newEnvelope(DomainEvent{Data: map[string]string{"order_id": "o-1"}}, now)
	if err != nil {
		t.Fatalf("newEnvelope: %v", err)
	}
	if env.Version != 1 || !env.OccurredAt.Equal(now) {
		t.Fatalf("expected version 1 at now, got v%d %s", env.Version, env.OccurredAt)
	}
	if _, err := uuid.Parse(env.EventID); err != nil {
		t.Fatalf("event id should be a uuid: %q", env.EventID)
	}
	if string(env.Data) != `{"order_id":"o-1"}` {
		t.Fatalf("unexpected data %s", env.Data)
	}

	if _, err := newEnvelope(DomainEvent{Data: make(chan int)}, now); err == nil {
		t.Fatalf("expected error for unencodable data")
	}
}

func TestParseEnvelope(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want error
		bad  bool
	}{
		"valid":     {raw: `{"version":1,"eventId":"e-1","data":{"a":1}}`},
		"no id":     {raw: `{"version":1,"data":{"a":1}}`, want: ErrMissingEventID},
		"null data": {raw: `{"version":1,"eventId":"e-1","data":null}`, want: ErrEmptyData},
		"no data":   {raw: `{"version":1,"eventId":"e-1"}`, want: ErrEmptyData},
		"not json":  {raw: `{`, bad: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tc.raw))
			switch {
			case tc.bad:
				if err == nil {
					t.Fatalf("expected decode error")
				}
			case tc.want != nil:
				if !errors.Is(err, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, err)
				}
			default:
				if err != nil || env.EventID != "e-1" {
					t.Fatalf("unexpected result %+v %v", env, err)
				}
			}
		})
	}
}
