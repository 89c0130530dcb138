// Package barrier implements the saving barrier: a counting semaphore that
// tracks in-flight file writes so a shutdown handler can wait for them to
// drain before the process exits.
package barrier

import "sync"

// Barrier counts in-flight write regions. Construct with New; the zero
// value has no condition variable and panics once Decrement or Wait needs it.
type Barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// New returns a Barrier with its condition variable wired to its own mutex.
func New() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Increment raises the in-flight count by one. Must be called immediately
// before opening the destination file.
func (b *Barrier) Increment() {
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
}

// Decrement lowers the in-flight count by one, waking any waiters once the
// count reaches zero. Must be called on every exit path of the write
// region that called Increment, success or failure.
func (b *Barrier) Decrement() {
	b.mu.Lock()
	b.count--
	if b.count == 0 {
		b.cond.Broadcast()
	}
	b.mu.Unlock()
}

// Wait blocks until the in-flight count is zero. Returns immediately if it
// already is.
func (b *Barrier) Wait() {
	b.mu.Lock()
	for b.count > 0 {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// Guard increments the barrier and returns a release function that
// decrements it exactly once. Callers should `defer guard()` immediately
// so a panic inside the write region cannot leak a permit — the one
// pairing discipline the original implementation got wrong by placing
// decrements inside error-mapping closures.
func (b *Barrier) Guard() (release func()) {
	b.Increment()
	var once sync.Once
	return func() {
		once.Do(b.Decrement)
	}
}
