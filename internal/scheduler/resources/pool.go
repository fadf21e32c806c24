package resources

import (
	"sync"
)

// Pool tracks the total and currently available capacity of a cluster. Check-and-subtract happens under a single
// lock, so two concurrent Allocate calls can never both succeed against the same free capacity.
type Pool struct {
	total     Vector
	available Vector
	mu        sync.Mutex
}

func NewPool(total Vector) *Pool {
	return &Pool{
		total:     total,
		available: total,
	}
}

// CanAllocate returns true if req fits in the available capacity.
func (p *Pool) CanAllocate(req Vector) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available.Dominates(req)
}

// Allocate subtracts req from the available capacity if it fits, and otherwise leaves the pool untouched.
// Requests with a negative component are refused.
func (p *Pool) Allocate(req Vector) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !req.IsNonNegative() || !p.available.Dominates(req) {
		return false
	}
	p.available = p.available.Sub(req)
	return true
}

// Release returns amount to the pool. Callers must release exactly what they allocated, exactly once.
func (p *Pool) Release(amount Vector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = p.available.Add(amount)
}

func (p *Pool) Total() Vector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func (p *Pool) Available() Vector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Allocated is Total minus Available.
func (p *Pool) Allocated() Vector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total.Sub(p.available)
}
