package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sweetpotato0/blackwell/evaluator"
)

type stubEvaluator struct {
	mu       sync.Mutex
	sessions []string
	inflight int32
	peak     int32
	delay    time.Duration
	fail     map[string]error
	panics   map[string]bool
}

func (s *stubEvaluator) Evaluate(ctx context.Context, report, sessionID string) (*evaluator.Outcome, error) {
	cur := atomic.AddInt32(&s.inflight, 1)
	defer atomic.AddInt32(&s.inflight, -1)
	for {
		old := atomic.LoadInt32(&s.peak)
		if cur <= old || atomic.CompareAndSwapInt32(&s.peak, old, cur) {
			break
		}
	}

	s.mu.Lock()
	s.sessions = append(s.sessions, sessionID)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.panics[sessionID] {
		panic("evaluation blew up")
	}
	if err, ok := s.fail[sessionID]; ok {
		return nil, err
	}
	return &evaluator.Outcome{FinalReport: "report for " + sessionID}, nil
}

func TestRunGeneratesSessionID(t *testing.T) {
	stub := &stubEvaluator{}
	r := New(stub, 2)

	out, err := r.Run(context.Background(), Task{AnamnesisReport: "headaches"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out == nil || out.FinalReport == "" {
		t.Fatal("empty outcome")
	}
	if len(stub.sessions) != 1 || stub.sessions[0] == "" {
		t.Errorf("session ID not generated: %v", stub.sessions)
	}
}

func TestRunBatchAlignsResults(t *testing.T) {
	stub := &stubEvaluator{
		fail: map[string]error{"s2": errors.New("pipeline failed")},
	}
	r := New(stub, 4)

	tasks := []Task{
		{SessionID: "s1", AnamnesisReport: "a"},
		{SessionID: "s2", AnamnesisReport: "b"},
		{SessionID: "s3", AnamnesisReport: "c"},
	}
	results := r.RunBatch(context.Background(), tasks)

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, want := range []string{"s1", "s2", "s3"} {
		if results[i].SessionID != want {
			t.Errorf("result %d session = %q, want %q", i, results[i].SessionID, want)
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("healthy tasks reported errors")
	}
	if results[1].Err == nil {
		t.Error("failed task reported no error")
	}
	if results[0].Outcome.FinalReport != "report for s1" {
		t.Errorf("outcome misaligned: %q", results[0].Outcome.FinalReport)
	}
}

func TestRunBatchRecoversPanics(t *testing.T) {
	stub := &stubEvaluator{panics: map[string]bool{"boom": true}}
	r := New(stub, 2)

	results := r.RunBatch(context.Background(), []Task{
		{SessionID: "boom", AnamnesisReport: "a"},
		{SessionID: "ok", AnamnesisReport: "b"},
	})
	if results[0].Err == nil {
		t.Error("panicking task should yield an error result")
	}
	if results[1].Err != nil {
		t.Errorf("sibling task affected: %v", results[1].Err)
	}
}

func TestRunBatchHonorsConcurrencyBound(t *testing.T) {
	stub := &stubEvaluator{delay: 30 * time.Millisecond}
	r := New(stub, 2)

	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i].AnamnesisReport = "case"
	}
	r.RunBatch(context.Background(), tasks)

	if peak := atomic.LoadInt32(&stub.peak); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestRunRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &stubEvaluator{delay: time.Second}
	r := New(stub, 1)

	// Occupy the only slot so Run blocks on the semaphore.
	go r.Run(context.Background(), Task{SessionID: "holder"})
	time.Sleep(10 * time.Millisecond)

	if _, err := r.Run(ctx, Task{SessionID: "waiter"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunBatchEmpty(t *testing.T) {
	r := New(&stubEvaluator{}, 0)
	if got := r.RunBatch(context.Background(), nil); len(got) != 0 {
		t.Errorf("results = %d, want 0", len(got))
	}
}
