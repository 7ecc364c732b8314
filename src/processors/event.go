package processors

import (
	"math"
	"time"

	"github.com/username/sharepool/src/models"
	"github.com/username/sharepool/src/utils"
)

type EventKind int

const (
	Acquisition EventKind = iota
	Disposal
)

// Event is the engine's typed view of a canonical record. It carries no
// bookkeeping state itself; remaining quantities and consumed flags live in
// the engine's per-run state slice, keyed by the event's position.
type Event struct {
	Kind         EventKind
	Date         time.Time
	Quantity     float64
	UnitPriceGBP float64
	UnitPriceUSD float64
	FxRate       float64
	GrantID      string
}

// NewEvent builds a typed event from a canonical record. It returns false for
// records it cannot classify or parse; it performs no recovery.
func NewEvent(rec models.EventRecord) (Event, bool) {
	var kind EventKind
	switch rec.Kind {
	case models.KindBuy:
		kind = Acquisition
	case models.KindSell:
		kind = Disposal
	default:
		return Event{}, false
	}

	date := utils.ParseISODate(rec.Date)
	if date.IsZero() {
		return Event{}, false
	}

	return Event{
		Kind:         kind,
		Date:         date,
		Quantity:     rec.Quantity,
		UnitPriceGBP: rec.UnitPriceGBP,
		UnitPriceUSD: rec.UnitPriceUSD,
		FxRate:       rec.FxRate,
		GrantID:      rec.GrantID,
	}, true
}

// Valid reports whether the event satisfies the engine's input contract:
// strictly positive quantity, finite non-negative prices and rate, and a real
// date. Invalid events are expected to be filtered out upstream; the engine
// only classifies.
func (e Event) Valid() bool {
	if e.Date.IsZero() {
		return false
	}
	if !(e.Quantity > 0) || math.IsInf(e.Quantity, 0) {
		return false
	}
	for _, v := range []float64{e.UnitPriceGBP, e.UnitPriceUSD, e.FxRate} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
