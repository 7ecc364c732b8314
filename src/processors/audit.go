package processors

import (
	"github.com/username/sharepool/src/models"
	"github.com/username/sharepool/src/utils"
)

// AuditTrail is the append-only ordered record of every pool-affecting
// action. Entries are never mutated or removed once appended; it is the sole
// source of truth for how the pool reached its final state.
type AuditTrail struct {
	records []models.MatchRecord
}

func NewAuditTrail() *AuditTrail {
	return &AuditTrail{records: []models.MatchRecord{}}
}

// append records an action against an acquisition or the pool itself.
// quantity is signed: negative for pool withdrawals.
func (a *AuditTrail) append(action models.MatchAction, ev Event, quantity float64, pool *Pool) {
	a.records = append(a.records, models.MatchRecord{
		Date:             utils.FormatISODate(ev.Date),
		Action:           action,
		Quantity:         quantity,
		UnitPriceGBP:     ev.UnitPriceGBP,
		UnitPriceUSD:     ev.UnitPriceUSD,
		FxRate:           ev.FxRate,
		PoolSharesAfter:  pool.TotalShares(),
		PoolAvgCostAfter: pool.AvgCostGBP(),
		GrantID:          ev.GrantID,
	})
}

// Records returns the trail in append order. Callers must treat the slice as
// read-only.
func (a *AuditTrail) Records() []models.MatchRecord {
	return a.records
}
