package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubRunner struct {
	calls int
	err   error
}

func (s *stubRunner) Run(ctx context.Context) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestRunFailsWhenDependencyDown(t *testing.T) {
	consumer := &stubRunner{}
	svc, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Deps:     map[string]pinger{"redis": stubPinger{err: errors.New("refused")}},
		Consumer: consumer,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness failure")
	}
	if consumer.calls != 0 {
		t.Fatalf("consumer must not start before dependencies are ready")
	}
}

func TestRunReturnsCanceledOnShutdown(t *testing.T) {
	consumer := &stubRunner{}
	svc, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Deps:     map[string]pinger{"database": stubPinger{}},
		Consumer: consumer,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if consumer.calls != 1 {
		t.Fatalf("expected consumer to run once, got %d", consumer.calls)
	}
}

func TestRunSurfacesConsumerError(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc, err := NewService(ServiceParams{Logger: quietLogger(), Consumer: &stubRunner{err: boom}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

func TestNewServiceRequiresConsumer(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: quietLogger()}); err == nil {
		t.Fatalf("expected error without consumer")
	}
}
