package processors

import (
	"errors"

	"github.com/username/sharepool/src/models"
)

// ErrInsufficientPoolShares signals that a disposal fell through to the pool
// for more shares than the pool holds. It indicates an incomplete acquisition
// history or out-of-order disposals and aborts the whole run.
var ErrInsufficientPoolShares = errors.New("insufficient pool shares")

// Pool is the Section 104 holding: a single share count with one weighted
// average cost per share. totalShares * avgCostGBP is the pool's cost basis
// at all times; both are zero when the pool is empty.
type Pool struct {
	totalShares float64
	avgCostGBP  float64
}

func NewPool() *Pool {
	return &Pool{}
}

// AddShares folds quantity shares at costPerShareGBP into the pool,
// recomputing the weighted average. Non-positive quantities are a no-op.
func (p *Pool) AddShares(quantity, costPerShareGBP float64) {
	if quantity <= 0 {
		return
	}
	newTotal := p.totalShares + quantity
	p.avgCostGBP = (p.avgCostGBP*p.totalShares + costPerShareGBP*quantity) / newTotal
	p.totalShares = newTotal
	if p.totalShares <= 0 {
		// Unreachable with a positive quantity; keeps the empty-pool invariant.
		p.totalShares = 0
		p.avgCostGBP = 0
	}
}

// RemoveShares withdraws quantity shares and returns the cost removed at the
// current average. The average cost per share is unchanged by a removal.
func (p *Pool) RemoveShares(quantity float64) (float64, error) {
	if quantity > p.totalShares {
		return 0, ErrInsufficientPoolShares
	}
	p.totalShares -= quantity
	return p.avgCostGBP * quantity, nil
}

func (p *Pool) TotalShares() float64 { return p.totalShares }
func (p *Pool) AvgCostGBP() float64  { return p.avgCostGBP }

// Status snapshots the pool for reporting.
func (p *Pool) Status() models.PoolStatus {
	return models.PoolStatus{TotalShares: p.totalShares, AvgCostGBP: p.avgCostGBP}
}
