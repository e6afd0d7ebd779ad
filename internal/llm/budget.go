package llm

import (
	"sync/atomic"
)

// Budget tracks one session's cumulative LLM spend. Counters are
// non-decreasing (§8 budget monotonicity) and mutated with atomics so no
// lock is needed (§5 "global counters" policy applied per-session here).
type Budget struct {
	maxTokens int64
	maxCostCents int64

	tokensUsed   int64
	costCentsUsed int64
}

func NewBudget(maxTokens int, maxCostCents int) *Budget {
	return &Budget{maxTokens: int64(maxTokens), maxCostCents: int64(maxCostCents)}
}

// Reserve checks whether spending estimatedTokens/estimatedCostCents more
// would exceed either ceiling, without committing the spend. The Dispatcher
// calls this before issuing a request so it can fail fast with
// budget-exhausted instead of paying for a call it must then discard.
func (b *Budget) Reserve(estimatedTokens int, estimatedCostCents int) bool {
	if b == nil {
		return true
	}
	if b.maxTokens > 0 && atomic.LoadInt64(&b.tokensUsed)+int64(estimatedTokens) > b.maxTokens {
		return false
	}
	if b.maxCostCents > 0 && atomic.LoadInt64(&b.costCentsUsed)+int64(estimatedCostCents) > b.maxCostCents {
		return false
	}
	return true
}

// Commit records actual spend after a response is received.
func (b *Budget) Commit(tokens int, costCents int) {
	if b == nil {
		return
	}
	atomic.AddInt64(&b.tokensUsed, int64(tokens))
	atomic.AddInt64(&b.costCentsUsed, int64(costCents))
}

func (b *Budget) TokensUsed() int64 {
	if b == nil {
		return 0
	}
	return atomic.LoadInt64(&b.tokensUsed)
}

func (b *Budget) CostCentsUsed() int64 {
	if b == nil {
		return 0
	}
	return atomic.LoadInt64(&b.costCentsUsed)
}
