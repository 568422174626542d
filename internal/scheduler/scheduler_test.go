package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("非正周期应 panic")
		}
	}()
	New(Options{Interval: 0}, zerolog.Nop())
}

func TestSchedulerRunsOnInterval(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context) error {
			runs.Add(1)
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if runs.Load() < 2 {
		t.Fatalf("应至少执行两轮, 实际 %d", runs.Load())
	}
}

func TestSchedulerDropsOverlappingRuns(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	started := make(chan struct{}, 8)
	release := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context) error {
			runs.Add(1)
			started <- struct{}{}
			<-release
			return nil
		})
	}()

	s.TriggerNow()
	<-started

	// 第一轮仍在执行：再次触发应被丢弃而非排队
	s.TriggerNow()
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("重叠触发应被丢弃, 实际执行 %d 轮", got)
	}

	close(release)

	// 第一轮结束后，新触发应正常执行
	deadline := time.Now().Add(time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("释放后新触发应开始执行")
		}
		s.TriggerNow()
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestTriggerNowCoalesced(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	// Run 启动前连续触发两次，只应保留一次
	s.TriggerNow()
	s.TriggerNow()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context) error {
			runs.Add(1)
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if got := runs.Load(); got != 1 {
		t.Fatalf("重复触发应合并为一轮, 实际 %d", got)
	}
}

func TestSchedulerStartupDelay(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: 200 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context) error {
			runs.Add(1)
			return nil
		})
	}()

	s.TriggerNow()
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatal("启动延迟期间不应执行")
	}

	cancel()
	<-done
}
