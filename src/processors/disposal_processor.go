package processors

import (
	"fmt"
	"sort"

	"github.com/username/sharepool/src/models"
	"github.com/username/sharepool/src/utils"
)

// Bed-and-breakfast rule: a disposal matches acquisitions made within the
// following 30 calendar days, boundary inclusive.
const bedAndBreakfastWindowDays = 30

// Section104Processor implements UK HMRC share matching for a single pooled
// holding: same-day matching first, then the 30-day bed-and-breakfast rule,
// then the Section 104 weighted-average pool.
//
// The processor is stateless; every Process call runs on a fresh pool and
// audit trail, so one instance can serve any number of sequential runs.
type Section104Processor struct{}

func NewSection104Processor() *Section104Processor {
	return &Section104Processor{}
}

// acquisitionState is the per-run bookkeeping for one acquisition. It lives
// in a slice owned by the run, indexed by acquisition position, so no state
// is ever written back onto shared records.
type acquisitionState struct {
	ev        Event
	remaining float64
	consumed  bool // true once the leftover has been folded into the pool
}

// Process runs the matching engine over the given canonical records. Records
// the event model cannot classify are dropped; everything else is assumed
// validated upstream. The run either returns a complete result or, on a
// disposal the pool cannot cover, an error and no result at all.
func (p *Section104Processor) Process(records []models.EventRecord) (*RunResult, error) {
	events := make([]Event, 0, len(records))
	for _, rec := range records {
		ev, ok := NewEvent(rec)
		if !ok || !ev.Valid() {
			continue
		}
		events = append(events, ev)
	}

	// Date order is an internal precondition, not a caller obligation. The
	// sort is stable so same-date events keep their input order, which is
	// also the tie-break rule for matching.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})

	var acquisitions []acquisitionState
	var disposals []Event
	for _, ev := range events {
		switch ev.Kind {
		case Acquisition:
			acquisitions = append(acquisitions, acquisitionState{ev: ev, remaining: ev.Quantity})
		case Disposal:
			disposals = append(disposals, ev)
		}
	}

	pool := NewPool()
	trail := NewAuditTrail()
	realized := make([]models.RealizedDisposal, 0, len(disposals))

	for _, d := range disposals {
		// Fold every strictly earlier, not-yet-used acquisition into the
		// pool so it reflects the holding as of the disposal date.
		migrateToPool(acquisitions, pool, trail, func(a *acquisitionState) bool {
			return a.ev.Date.Before(d.Date)
		})

		outstanding := d.Quantity
		matchedCost := 0.0

		// Same-day match.
		for i := range acquisitions {
			if outstanding <= 0 {
				break
			}
			a := &acquisitions[i]
			if a.consumed || a.remaining <= 0 || !a.ev.Date.Equal(d.Date) {
				continue
			}
			matchable := utils.MinFloat(outstanding, a.remaining)
			matchedCost += matchable * a.ev.UnitPriceGBP
			a.remaining -= matchable
			outstanding -= matchable
			trail.append(models.ActionSameDay, a.ev, matchable, pool)
		}

		// Bed-and-breakfast match. Acquisitions are already ordered by date
		// then input position, so this walks earliest-first.
		windowEnd := d.Date.AddDate(0, 0, bedAndBreakfastWindowDays)
		for i := range acquisitions {
			if outstanding <= 0 {
				break
			}
			a := &acquisitions[i]
			if a.consumed || a.remaining <= 0 {
				continue
			}
			if !a.ev.Date.After(d.Date) || a.ev.Date.After(windowEnd) {
				continue
			}
			matchable := utils.MinFloat(outstanding, a.remaining)
			matchedCost += matchable * a.ev.UnitPriceGBP
			a.remaining -= matchable
			outstanding -= matchable
			trail.append(models.ActionBedAndBfast, a.ev, matchable, pool)
		}

		// Pool fallback must exactly absorb whatever remains.
		if outstanding > 0 {
			cost, err := pool.RemoveShares(outstanding)
			if err != nil {
				return nil, fmt.Errorf("disposal of %v shares on %s: %w",
					d.Quantity, utils.FormatISODate(d.Date), err)
			}
			matchedCost += cost
			trail.append(models.ActionPoolSale, d, -outstanding, pool)
		}

		proceeds := d.Quantity * d.UnitPriceGBP
		realized = append(realized, models.RealizedDisposal{
			Date:             utils.FormatISODate(d.Date),
			Quantity:         d.Quantity,
			SellUnitPriceGBP: d.UnitPriceGBP,
			SellUnitPriceUSD: d.UnitPriceUSD,
			FxRate:           d.FxRate,
			ProceedsGBP:      proceeds,
			MatchedCostGBP:   matchedCost,
			GainLossGBP:      proceeds - matchedCost,
		})
	}

	// Terminal cleanup: acquisitions never touched by a disposal, including
	// ones dated after the last sale, still belong in the pool.
	migrateToPool(acquisitions, pool, trail, func(*acquisitionState) bool { return true })

	return &RunResult{
		Disposals:  realized,
		Pool:       pool.Status(),
		AuditTrail: trail.Records(),
	}, nil
}

// migrateToPool folds the leftover of every eligible unconsumed acquisition
// into the pool. Fully matched acquisitions are marked consumed without an
// audit entry: a zero-share add does not affect the pool.
func migrateToPool(acquisitions []acquisitionState, pool *Pool, trail *AuditTrail, eligible func(*acquisitionState) bool) {
	for i := range acquisitions {
		a := &acquisitions[i]
		if a.consumed || !eligible(a) {
			continue
		}
		a.consumed = true
		if a.remaining <= 0 {
			continue
		}
		pool.AddShares(a.remaining, a.ev.UnitPriceGBP)
		trail.append(models.ActionAddToPool, a.ev, a.remaining, pool)
	}
}
