package llm

import "sync"

// CostBreakdown accumulates token usage and dollar cost across calls; a
// Client keeps one running total for both model tiers. It lives with the client that made the calls, not with
// RunState — the core only ever copies the running total into RunState
// before a budget check, which avoids double-counting when several call
// sites share the same underlying usage reporting.
type CostBreakdown struct {
	InputTokens  int
	OutputTokens int
	InputCost    float64
	OutputCost   float64
	TotalCost    float64
}

// Add merges other into c in place.
func (c *CostBreakdown) Add(other CostBreakdown) {
	c.InputTokens += other.InputTokens
	c.OutputTokens += other.OutputTokens
	c.InputCost += other.InputCost
	c.OutputCost += other.OutputCost
	c.TotalCost += other.TotalCost
}

// runningCost is a concurrency-safe accumulator shared by a Client's smart
// and cheap calls. A plain mutex is enough: stages run sequentially, so at
// most one call is in flight per run.
type runningCost struct {
	mu    sync.Mutex
	total CostBreakdown
}

func (r *runningCost) add(c CostBreakdown) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total.Add(c)
}

func (r *runningCost) snapshot() CostBreakdown {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
