package util

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestGateMaximum(t *testing.T) {
	// create 10 goroutines trying to enter a gate that can only hold 5
	g := NewGate(5)
	var nenter, nrefused int64
	for i := 0; i < 10; i++ {
		go func() {
			if g.Enter() {
				atomic.AddInt64(&nenter, 1)
			} else {
				atomic.AddInt64(&nrefused, 1)
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	if n := atomic.LoadInt64(&nenter); n != 5 {
		t.Errorf("Got %d enters, expected 5", n)
	}

	// each Leave admits one more waiter
	g.Leave()
	g.Leave()
	time.Sleep(10 * time.Millisecond)
	if n := atomic.LoadInt64(&nenter); n != 7 {
		t.Errorf("Got %d enters, expected 7", n)
	}

	// stopping refuses the rest
	g.Stop()
	time.Sleep(10 * time.Millisecond)
	if n := atomic.LoadInt64(&nrefused); n != 3 {
		t.Errorf("Got %d refusals, expected 3", n)
	}
	if !t.Failed() {
		// balance the goroutines still inside
		for i := 0; i < 5; i++ {
			g.Leave()
		}
	}
}

func TestGateStopped(t *testing.T) {
	g := NewGate(1)
	g.Stop()
	if g.Enter() {
		t.Errorf("Got an entry into a stopped gate")
	}
}
