package evolution

import (
	"sync"
	"testing"
	"time"
)

func TestBarrierZeroSkip(t *testing.T) {
	b := NewBarrier("test", nil)
	ran := false
	b.Await(0, func() { ran = true })
	if !ran {
		t.Fatal("Await(0) should run the continuation synchronously")
	}
	if b.Armed() {
		t.Error("barrier should not be armed after Await(0)")
	}
}

func TestBarrierOutOfOrder(t *testing.T) {
	b := NewBarrier("test", nil)
	runs := 0
	b.Await(3, func() { runs++ })
	s1, s2, s3 := b.Signal(), b.Signal(), b.Signal()

	s3()
	s1()
	if runs != 0 {
		t.Fatalf("continuation ran after 2 of 3 completions")
	}
	if got := b.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1", got)
	}
	s2()
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
	if b.Armed() {
		t.Error("barrier still armed after last completion")
	}
}

func TestBarrierSignalIsOneShot(t *testing.T) {
	b := NewBarrier("test", nil)
	runs := 0
	b.Await(2, func() { runs++ })
	s := b.Signal()
	s()
	s()
	if runs != 0 || b.Pending() != 1 {
		t.Errorf("double signal: runs = %d, pending = %d; want 0, 1", runs, b.Pending())
	}
}

func TestBarrierIgnoresStaleSignals(t *testing.T) {
	b := NewBarrier("test", nil)
	first, second := 0, 0
	b.Await(1, func() { first++ })
	stale := b.Signal()
	b.Await(1, func() { second++ })

	stale()
	if first != 0 || second != 0 {
		t.Fatalf("stale signal ran a continuation: first = %d, second = %d", first, second)
	}
	b.Signal()()
	if second != 1 {
		t.Errorf("second = %d, want 1", second)
	}

	// A completion after the barrier fired is ignored too.
	b.Done()
	if second != 1 {
		t.Errorf("Done() on idle barrier re-ran continuation")
	}
}

func TestBarrierContinuationMayRearm(t *testing.T) {
	b := NewBarrier("test", nil)
	var order []int
	b.Await(1, func() {
		order = append(order, 1)
		b.Await(1, func() { order = append(order, 2) })
	})
	b.Signal()()
	if !b.Armed() {
		t.Fatal("barrier should be re-armed by its continuation")
	}
	b.Signal()()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}

func TestBarrierConcurrentSignals(t *testing.T) {
	const n = 64
	b := NewBarrier("test", nil)
	done := make(chan struct{})
	b.Await(n, func() { close(done) })

	signals := make([]func(), n)
	for i := range signals {
		signals[i] = b.Signal()
	}
	var wg sync.WaitGroup
	for _, s := range signals {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s()
		}()
	}
	wg.Wait()

	select {
	case <-done:
	default:
		t.Fatal("continuation did not run after all concurrent signals")
	}
}

func TestBarrierWaiting(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBarrier("test", nil)
	b.now = func() time.Time { return start }

	if got := b.Waiting(start.Add(time.Hour)); got != 0 {
		t.Errorf("Waiting() on idle barrier = %v, want 0", got)
	}
	b.Await(1, nil)
	if got := b.Waiting(start.Add(3 * time.Second)); got != 3*time.Second {
		t.Errorf("Waiting() = %v, want 3s", got)
	}
}
