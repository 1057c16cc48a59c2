package util

// A Gate limits concurrency. At most n goroutines may be between Enter
// and Leave at a time; further callers block. A stopped gate turns
// every waiting and future Enter into a refusal, which gives servers a
// way to shed load during shutdown.
type Gate struct {
	tokens chan struct{}
	done   chan struct{}
}

// NewGate returns a Gate admitting at most n entries at a time.
func NewGate(n int) *Gate {
	return &Gate{
		tokens: make(chan struct{}, n),
		done:   make(chan struct{}),
	}
}

// Enter blocks until there is room inside the gate, and then returns
// true. It returns false without entering if the gate has been stopped.
// Safe to call from multiple goroutines.
func (g *Gate) Enter() bool {
	select {
	case <-g.done:
		return false
	case g.tokens <- struct{}{}:
		return true
	}
}

// Leave releases one slot in the gate. Balance every successful Enter
// with exactly one Leave; the two calls need not come from the same
// goroutine.
func (g *Gate) Leave() {
	<-g.tokens
}

// Stop refuses all waiting and future entries. Goroutines already
// inside the gate are unaffected and should still call Leave.
func (g *Gate) Stop() {
	close(g.done)
}
