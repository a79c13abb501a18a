package orchestrator

import "sync"

// BudgetStatus represents the current state of budget consumption.
type BudgetStatus int

const (
	// BudgetOK indicates usage is below the warning threshold (<80%).
	BudgetOK BudgetStatus = iota
	// BudgetWarning indicates usage is between warning and exhaustion (80-99%).
	BudgetWarning
	// BudgetExhausted indicates budget is fully consumed (>=100%).
	BudgetExhausted
)

// String returns a human-readable representation of the budget status.
func (s BudgetStatus) String() string {
	switch s {
	case BudgetOK:
		return "OK"
	case BudgetWarning:
		return "Warning"
	case BudgetExhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// DefaultWarningThreshold is the default percentage at which warnings begin.
const DefaultWarningThreshold = 0.80

// BudgetHandler monitors token usage against a configured budget. Crossing
// the budget aborts the run; usage is an estimate and may overshoot by one
// task's worth of tokens.
type BudgetHandler struct {
	mu               sync.RWMutex
	budget           int64
	used             int64
	warningThreshold float64
}

// NewBudgetHandler creates a BudgetHandler with the specified token budget.
// A budget of 0 or less disables enforcement.
func NewBudgetHandler(budget int64) *BudgetHandler {
	return &BudgetHandler{
		budget:           budget,
		warningThreshold: DefaultWarningThreshold,
	}
}

// Update adds the specified number of tokens to the usage counter.
func (h *BudgetHandler) Update(tokensUsed int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.used += tokensUsed
}

// Check returns the current budget status based on usage percentage.
func (h *BudgetHandler) Check() BudgetStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.budget <= 0 {
		return BudgetOK
	}

	percentage := float64(h.used) / float64(h.budget)
	if percentage >= 1.0 {
		return BudgetExhausted
	}
	if percentage >= h.warningThreshold {
		return BudgetWarning
	}
	return BudgetOK
}

// Usage returns used tokens, total budget, and usage percentage (0.0-1.0).
func (h *BudgetHandler) Usage() (used, budget int64, percentage float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	used = h.used
	budget = h.budget
	if budget > 0 {
		percentage = float64(used) / float64(budget)
	}
	return used, budget, percentage
}

// Used returns the tokens consumed so far.
func (h *BudgetHandler) Used() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.used
}
