package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegister_InvalidSpecReturnsError(t *testing.T) {
	s := New(time.UTC)
	if err := s.Register("not a cron spec", "bad", time.Second, func(context.Context) {}); err == nil {
		t.Error("expected an error for an invalid cron spec")
	}
}

func TestRunOne_PanicIsRecoveredAndDoesNotCrash(t *testing.T) {
	s := New(time.UTC)
	var ran int32
	s.runOne("panicky", time.Second, func(context.Context) {
		atomic.StoreInt32(&ran, 1)
		panic("boom")
	})
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("expected body to run before panicking")
	}
}

func TestRunOne_RespectsTimeout(t *testing.T) {
	s := New(time.UTC)
	var sawDeadline bool
	s.runOne("slow", 10*time.Millisecond, func(ctx context.Context) {
		<-ctx.Done()
		sawDeadline = ctx.Err() == context.DeadlineExceeded
	})
	if !sawDeadline {
		t.Error("expected the job's context to hit its deadline")
	}
}
