package evolution

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Barrier counts outstanding element animations of one phase and runs a
// continuation once all of them have completed.
//
// A barrier is armed with [Barrier.Await] and decremented through the
// one-shot callbacks returned by [Barrier.Signal]. Completions may arrive in
// any order and from any goroutine. The continuation runs exactly once,
// outside the barrier's lock, on the goroutine that delivered the last
// completion (or inside Await when the count is zero).
type Barrier struct {
	name   string
	logger *log.Logger
	now    func() time.Time

	mu         sync.Mutex
	pending    int
	armed      bool
	armedAt    time.Time
	generation uint64
	then       func()
}

// NewBarrier returns an unarmed barrier. name appears in log messages.
func NewBarrier(name string, logger *log.Logger) *Barrier {
	if logger == nil {
		logger = discardLogger()
	}
	return &Barrier{name: name, logger: logger, now: time.Now}
}

// Await arms the barrier with n outstanding completions. When n is zero the
// continuation runs before Await returns. Arming an already armed barrier
// replaces its count and continuation; callbacks handed out before are
// ignored from then on.
func (b *Barrier) Await(n int, then func()) {
	if n <= 0 {
		b.mu.Lock()
		b.generation++
		b.armed = false
		b.pending = 0
		b.then = nil
		b.mu.Unlock()
		if then != nil {
			then()
		}
		return
	}

	b.mu.Lock()
	if b.armed {
		b.logger.Warn("barrier re-armed while waiting", "barrier", b.name, "pending", b.pending)
	}
	b.generation++
	b.armed = true
	b.pending = n
	b.armedAt = b.now()
	b.then = then
	b.mu.Unlock()
}

// Signal returns a callback that counts one completion. Calling it more than
// once has no further effect. Callbacks from a previous arming are ignored.
func (b *Barrier) Signal() func() {
	b.mu.Lock()
	gen := b.generation
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.done(gen) })
	}
}

// Done counts one completion for the current arming. Prefer [Barrier.Signal],
// which guards against double counting.
func (b *Barrier) Done() {
	b.mu.Lock()
	gen := b.generation
	b.mu.Unlock()
	b.done(gen)
}

func (b *Barrier) done(gen uint64) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		b.logger.Debug("ignoring stale completion", "barrier", b.name)
		return
	}
	if !b.armed {
		b.mu.Unlock()
		b.logger.Warn("completion on idle barrier", "barrier", b.name)
		return
	}
	b.pending--
	if b.pending > 0 {
		b.mu.Unlock()
		return
	}
	then := b.then
	b.armed = false
	b.then = nil
	b.generation++
	b.mu.Unlock()

	if then != nil {
		then()
	}
}

// Pending returns the number of outstanding completions.
func (b *Barrier) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Armed reports whether the barrier is waiting for completions.
func (b *Barrier) Armed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.armed
}

// Waiting returns how long the barrier has been armed at time now, or zero
// when it is not armed.
func (b *Barrier) Waiting(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.armed {
		return 0
	}
	return now.Sub(b.armedAt)
}
