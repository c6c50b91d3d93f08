package executor

import "sync"

// CostAccountant tracks accumulated cost against a budget over the
// lifetime of one run. Add reports whether the budget is exceeded after
// applying delta; implementations must be safe for concurrent use since
// nodes report cost from concurrent tasks.
type CostAccountant interface {
	Add(delta float64) (exceeded bool)
}

// noopAccountant is the default CostAccountant for a runbook with no
// cost_limit configured: it never reports the budget as exceeded.
type noopAccountant struct{}

func (noopAccountant) Add(float64) bool { return false }

// BudgetAccountant is a CostAccountant that fails once the running total
// of reported deltas exceeds a fixed limit.
type BudgetAccountant struct {
	mu    sync.Mutex
	limit float64
	spent float64
}

// NewBudgetAccountant constructs a BudgetAccountant against limit. A
// non-positive limit never trips (equivalent to noopAccountant).
func NewBudgetAccountant(limit float64) *BudgetAccountant {
	return &BudgetAccountant{limit: limit}
}

func (b *BudgetAccountant) Add(delta float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent += delta
	return b.limit > 0 && b.spent > b.limit
}

// Spent returns the running total reported so far.
func (b *BudgetAccountant) Spent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}
