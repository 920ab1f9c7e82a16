package core

import "sync"

// Budget enforces the maximum number of loop iterations allowed per agent run.
type Budget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewBudget creates a budget allowing max iterations. If max <= 0, unlimited
// iterations are allowed.
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// Consume claims one iteration and returns a *BudgetExceededError if the cap
// has already been reached.
func (b *Budget) Consume() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.count >= b.max {
		return &BudgetExceededError{MaxTurns: b.max, Turns: b.count}
	}
	b.count++

	return nil
}

// Used returns the number of iterations consumed so far.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many iterations are left, or -1 if unlimited.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max <= 0 {
		return -1
	}

	return b.max - b.count
}
