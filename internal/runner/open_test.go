package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestOpenLoopArrivalCountMatchesRate(t *testing.T) {
	sub := &fakeSubmitter{delay: time.Millisecond}
	res, err := OpenLoop{
		Rate:                200,
		Duration:            time.Second,
		PreAllocatedCallers: 10,
		MaxCallers:          50,
		GracefulStop:        time.Second,
		Source:              fixedSource,
		Submitter:           sub,
	}.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Issued < 180 || res.Issued > 220 {
		t.Fatalf("Issued = %d, want 200 ± 10%%", res.Issued)
	}
	if int64(len(res.Samples)) != res.Issued {
		t.Fatalf("samples = %d, issued = %d", len(res.Samples), res.Issued)
	}
	if res.Dropped != 0 || res.Abandoned != 0 {
		t.Fatalf("dropped/abandoned = %d/%d", res.Dropped, res.Abandoned)
	}
}

func TestOpenLoopKeysArePerCaller(t *testing.T) {
	sub := &fakeSubmitter{delay: time.Millisecond}
	_, err := OpenLoop{
		Rate:                100,
		Duration:            200 * time.Millisecond,
		PreAllocatedCallers: 2,
		MaxCallers:          2,
		Backlog:             BacklogQueue,
		Source:              fixedSource,
		Submitter:           sub,
		KeyPrefix:           "run-",
	}.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	keys := sub.Keys()
	if len(keys) == 0 {
		t.Fatal("no submissions")
	}
	seen := map[string]bool{}
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
		if !strings.HasPrefix(k, "run-1-") && !strings.HasPrefix(k, "run-2-") {
			t.Fatalf("key %q does not name caller 1 or 2", k)
		}
	}
	if !seen["run-1-0"] {
		t.Fatalf("first iteration of caller 1 missing: %v", keys)
	}
}

func TestOpenLoopDropsWhenPoolExhausted(t *testing.T) {
	sub := &fakeSubmitter{delay: 50 * time.Millisecond}
	res, err := OpenLoop{
		Rate:                200,
		Duration:            500 * time.Millisecond,
		PreAllocatedCallers: 1,
		MaxCallers:          1,
		Backlog:             BacklogDrop,
		GracefulStop:        time.Second,
		Source:              fixedSource,
		Submitter:           sub,
	}.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Dropped == 0 {
		t.Fatal("expected dropped arrivals")
	}
	if res.PeakInFlight != 1 {
		t.Fatalf("PeakInFlight = %d, want 1", res.PeakInFlight)
	}
	if total := res.Issued + res.Dropped; total < 80 {
		t.Fatalf("issued+dropped = %d, want the arrival schedule kept (~100)", total)
	}
	if res.Issued > 15 {
		t.Fatalf("Issued = %d, one caller cannot finish that many 50ms orders in 500ms", res.Issued)
	}
}

func TestOpenLoopQueueDelaysInsteadOfDropping(t *testing.T) {
	sub := &fakeSubmitter{delay: 50 * time.Millisecond}
	res, err := OpenLoop{
		Rate:                200,
		Duration:            500 * time.Millisecond,
		PreAllocatedCallers: 1,
		MaxCallers:          1,
		Backlog:             BacklogQueue,
		GracefulStop:        time.Second,
		Source:              fixedSource,
		Submitter:           sub,
	}.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Dropped != 0 {
		t.Fatalf("Dropped = %d, want 0 with queue policy", res.Dropped)
	}
	if res.Issued < 5 || res.Issued > 15 {
		t.Fatalf("Issued = %d, want about 10", res.Issued)
	}
}

func TestOpenLoopGrowsPoolUpToMax(t *testing.T) {
	sub := &fakeSubmitter{delay: 100 * time.Millisecond}
	res, err := OpenLoop{
		Rate:                100,
		Duration:            300 * time.Millisecond,
		PreAllocatedCallers: 1,
		MaxCallers:          5,
		GracefulStop:        time.Second,
		Source:              fixedSource,
		Submitter:           sub,
	}.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.PeakInFlight != 5 {
		t.Fatalf("PeakInFlight = %d, want pool grown to 5", res.PeakInFlight)
	}
	if sub.peak.Load() > 5 {
		t.Fatalf("observed %d concurrent submissions, max 5", sub.peak.Load())
	}
	if res.Dropped == 0 {
		t.Fatal("expected drops once the pool hit its maximum")
	}
}

func TestOpenLoopAbandonsAfterGracefulStop(t *testing.T) {
	sub := &fakeSubmitter{delay: time.Hour}
	start := time.Now()
	res, err := OpenLoop{
		Rate:                50,
		Duration:            100 * time.Millisecond,
		PreAllocatedCallers: 20,
		GracefulStop:        50 * time.Millisecond,
		Source:              fixedSource,
		Submitter:           sub,
	}.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("run took %s, graceful stop not enforced", elapsed)
	}
	if res.Issued == 0 {
		t.Fatal("expected some arrivals")
	}
	if res.Abandoned != res.Issued {
		t.Fatalf("Abandoned = %d, want all %d issued", res.Abandoned, res.Issued)
	}
	if len(res.Samples) != 0 {
		t.Fatalf("abandoned orders recorded %d samples", len(res.Samples))
	}
}

func TestOpenLoopPoissonUsesSampler(t *testing.T) {
	sub := &fakeSubmitter{}
	res, err := OpenLoop{
		Rate:                100,
		Duration:            300 * time.Millisecond,
		PreAllocatedCallers: 5,
		Arrival:             ArrivalModelPoisson,
		PoissonSampler:      func() float64 { return 1 },
		GracefulStop:        time.Second,
		Source:              fixedSource,
		Submitter:           sub,
	}.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// A constant sample of 1 spaces arrivals exactly 10ms apart.
	if res.Issued < 22 || res.Issued > 31 {
		t.Fatalf("Issued = %d, want about 30", res.Issued)
	}
}

func TestOpenLoopStagesReplaceRate(t *testing.T) {
	sub := &fakeSubmitter{}
	start := time.Now()
	res, err := OpenLoop{
		PreAllocatedCallers: 5,
		Stages: []LoadPattern{
			{Type: LoadPatternTypeSpike, RPS: 100, Duration: 300 * time.Millisecond},
			{Type: LoadPatternTypeStep, Steps: []LoadStep{{RPS: 0, Duration: 200 * time.Millisecond}}},
		},
		GracefulStop: time.Second,
		Source:       fixedSource,
		Submitter:    sub,
	}.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 450*time.Millisecond {
		t.Fatalf("run ended after %s, before the staged schedule", elapsed)
	}
	if res.Issued < 20 || res.Issued > 45 {
		t.Fatalf("Issued = %d, want about 30 from the spike stage only", res.Issued)
	}
}

func TestOpenLoopValidation(t *testing.T) {
	base := OpenLoop{
		Rate:                10,
		Duration:            time.Second,
		PreAllocatedCallers: 1,
		Source:              fixedSource,
		Submitter:           &fakeSubmitter{},
	}
	tests := []struct {
		name   string
		mutate func(*OpenLoop)
		target error
	}{
		{"no callers", func(l *OpenLoop) { l.PreAllocatedCallers = 0 }, ErrInvalidConcurrency},
		{"no submitter", func(l *OpenLoop) { l.Submitter = nil }, ErrNoSubmitter},
		{"no source", func(l *OpenLoop) { l.Source = nil }, ErrNoSource},
		{"zero rate", func(l *OpenLoop) { l.Rate = 0 }, nil},
		{"zero duration", func(l *OpenLoop) { l.Duration = 0 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := base
			tt.mutate(&l)
			_, err := l.Run(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Fatalf("error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestOpenLoopCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	sub := &fakeSubmitter{delay: time.Hour}
	res, err := OpenLoop{
		Rate:                100,
		Duration:            time.Hour,
		PreAllocatedCallers: 50,
		GracefulStop:        time.Hour,
		Source:              fixedSource,
		Submitter:           sub,
	}.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if int64(len(res.Samples)) != res.Issued {
		t.Fatalf("samples = %d, issued = %d; interrupted orders should be recorded", len(res.Samples), res.Issued)
	}
}
