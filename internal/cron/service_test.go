package cron

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeLock struct {
	held     bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunCycleRunsEveryJobEvenAfterFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	failing := &testJob{name: "fails", err: errors.New("boom")}
	passing := &testJob{name: "passes"}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{
		Logger:  quietLogger(),
		Jobs:    []Job{failing, nil, passing},
		Lock:    lock,
		Metrics: metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if got := len(svc.Jobs()); got != 2 {
		t.Fatalf("expected nil jobs to be dropped, got %d jobs", got)
	}
	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if failing.runs != 1 || passing.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", failing.runs, passing.runs)
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("expected lock released once, held=%v releases=%d", lock.held, lock.releases)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if metric.GetCounter() != nil {
				labels := metric.GetLabel()
				counts[family.GetName()+"/"+labels[0].GetValue()+"/"+labels[1].GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	if counts["teamprint_cron_job_runs_total/fails/failure"] != 1 {
		t.Fatalf("expected failure counter for fails, got %v", counts)
	}
	if counts["teamprint_cron_job_runs_total/passes/success"] != 1 {
		t.Fatalf("expected success counter for passes, got %v", counts)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	lock := &fakeLock{held: true}
	svc, err := NewService(ServiceParams{Logger: quietLogger(), Jobs: []Job{job}, Lock: lock})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d times", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("a lock owned elsewhere must not be released")
	}
}

func TestRunCycleReportsLockError(t *testing.T) {
	job := &testJob{name: "job"}
	svc, err := NewService(ServiceParams{Logger: quietLogger(), Jobs: []Job{job}, Lock: &fakeLock{err: errors.New("redis down")}})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.runCycle(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped on lock error")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	job := &testJob{name: "job"}
	svc, err := NewService(ServiceParams{Logger: quietLogger(), Jobs: []Job{job}, Lock: &fakeLock{}})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the startup cycle to run once, got %d", job.runs)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: quietLogger()}); err == nil {
		t.Fatal("expected lock error")
	}
}

type losingLease struct {
	fakeLock
	extends atomic.Int32
}

func (l *losingLease) Extend(context.Context) (bool, error) {
	l.extends.Add(1)
	return false, nil
}

func (l *losingLease) TTL() time.Duration { return 30 * time.Millisecond }

type blockingJob struct {
	testJob
}

func (j *blockingJob) Run(ctx context.Context) error {
	j.runs++
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return errors.New("cycle was not canceled")
	}
}

func TestRunCycleStopsWhenLeaseIsLost(t *testing.T) {
	lease := &losingLease{}
	slow := &blockingJob{testJob{name: "slow"}}
	next := &testJob{name: "next"}
	svc, err := NewService(ServiceParams{Logger: quietLogger(), Jobs: []Job{slow, next}, Lock: lease})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	err = svc.runCycle(context.Background())
	if !errors.Is(err, errLockLost) {
		t.Fatalf("expected lock lost error, got %v", err)
	}
	if slow.runs != 1 || next.runs != 0 {
		t.Fatalf("expected cycle to stop after the slow job, got %d and %d", slow.runs, next.runs)
	}
	if lease.extends.Load() == 0 {
		t.Fatal("expected at least one renewal attempt")
	}
	if lease.releases != 1 {
		t.Fatalf("expected release after lost lease, got %d", lease.releases)
	}
}

type panickingJob struct{}

func (panickingJob) Name() string { return "panics" }

func (panickingJob) Run(context.Context) error { panic("nil map") }

func TestRunCycleRecoversPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	svc, err := NewService(ServiceParams{Logger: quietLogger(), Jobs: []Job{panickingJob{}, after}, Lock: &fakeLock{}})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if after.runs != 1 {
		t.Fatalf("expected job after the panic to run, got %d", after.runs)
	}
}
