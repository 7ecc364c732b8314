package models

// EventRecord is the canonical, already-enriched representation of a single
// acquisition or disposal of the pooled holding. Parsers are responsible for
// populating every field, including both unit prices and the USD/GBP rate that
// links them; the matching engine performs no re-validation.
type EventRecord struct {
	ID           int64   `json:"id"`
	Kind         string  `json:"kind"` // "BUY" or "SELL"
	Date         string  `json:"date"` // ISO 2006-01-02
	Quantity     float64 `json:"quantity"`
	UnitPriceGBP float64 `json:"unit_price_gbp"`
	UnitPriceUSD float64 `json:"unit_price_usd"`
	FxRate       float64 `json:"fx_rate"` // USD per GBP on the event date
	GrantID      string  `json:"grant_id"`
	OrderType    string  `json:"order_type"`    // e.g. "Vest", "Exercise", "Sell"
	SecurityType string  `json:"security_type"` // e.g. "Restricted Stock Unit"
	Source       string  `json:"source"`
	HashID       string  `json:"hash_id"`
}

const (
	KindBuy  = "BUY"
	KindSell = "SELL"
)

// MatchAction identifies which rule produced an audit entry.
type MatchAction string

const (
	ActionAddToPool   MatchAction = "AddToPool"
	ActionSameDay     MatchAction = "SameDayMatch"
	ActionBedAndBfast MatchAction = "BedAndBreakfastMatch"
	ActionPoolSale    MatchAction = "PoolSale"
)

// MatchRecord is one entry of the append-only audit trail. Quantity is signed:
// negative for pool withdrawals, positive otherwise.
type MatchRecord struct {
	Date             string      `json:"date"`
	Action           MatchAction `json:"action"`
	Quantity         float64     `json:"quantity"`
	UnitPriceGBP     float64     `json:"unit_price_gbp"`
	UnitPriceUSD     float64     `json:"unit_price_usd"`
	FxRate           float64     `json:"fx_rate"`
	PoolSharesAfter  float64     `json:"pool_shares_after"`
	PoolAvgCostAfter float64     `json:"pool_avg_cost_after"`
	GrantID          string      `json:"grant_id"`
}

// RealizedDisposal is a fully matched sale with its gain or loss in GBP.
type RealizedDisposal struct {
	Date             string  `json:"date"`
	Quantity         float64 `json:"quantity"`
	SellUnitPriceGBP float64 `json:"sell_unit_price_gbp"`
	SellUnitPriceUSD float64 `json:"sell_unit_price_usd"`
	FxRate           float64 `json:"fx_rate"`
	ProceedsGBP      float64 `json:"proceeds_gbp"`
	MatchedCostGBP   float64 `json:"matched_cost_gbp"`
	GainLossGBP      float64 `json:"gain_loss_gbp"`
}

// PoolStatus is the reporting view of the Section 104 pool.
type PoolStatus struct {
	TotalShares float64 `json:"total_shares"`
	AvgCostGBP  float64 `json:"avg_cost_gbp"`
}
