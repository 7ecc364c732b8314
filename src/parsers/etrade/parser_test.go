package etrade

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/sharepool/src/models"
	"github.com/username/sharepool/src/processors"
)

func newTestCalculator(t *testing.T) *processors.VestPriceCalculator {
	t.Helper()
	dir := t.TempDir()

	stockPath := filepath.Join(dir, "stock.csv")
	require.NoError(t, os.WriteFile(stockPath, []byte(`Date,Close_Price
2023-07-03,64.50
2023-07-05,66.00
`), 0o644))

	forexPath := filepath.Join(dir, "forex.csv")
	require.NoError(t, os.WriteFile(forexPath, []byte(`Date,Average
2023-07-03,1.25
2023-07-05,1.28
`), 0o644))

	holidayPath := filepath.Join(dir, "holidays.json")
	require.NoError(t, os.WriteFile(holidayPath, []byte(`[
	  {"date": "2023-07-04", "global": true, "types": ["Public"]}
	]`), 0o644))

	calc, err := processors.NewVestPriceCalculator(stockPath, forexPath, holidayPath)
	require.NoError(t, err)
	return calc
}

func TestParser_ConsolidatedCSV(t *testing.T) {
	input := `Record Type,Date,Qty.,Price Per Share,Price Per Share GBP,Exchange Rate,Order Type,Type,Grant Number
Buy,2023-07-03,100,64.50,51.60,1.25,Vest,Restricted Stock Unit,G100
Sell,2023-07-05,"1,040",66.00,51.5625,1.28,Sell,Restricted Stock Unit,G100
`
	p := NewParser(newTestCalculator(t))
	events, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)

	b := events[0]
	assert.Equal(t, models.KindBuy, b.Kind)
	assert.Equal(t, "2023-07-03", b.Date)
	assert.InDelta(t, 100.0, b.Quantity, 1e-9)
	assert.InDelta(t, 64.50, b.UnitPriceUSD, 1e-9)
	assert.InDelta(t, 51.60, b.UnitPriceGBP, 1e-9)
	assert.InDelta(t, 1.25, b.FxRate, 1e-9)
	assert.Equal(t, "G100", b.GrantID)
	assert.Equal(t, "Vest", b.OrderType)
	assert.Equal(t, "etrade", b.Source)
	assert.NotEmpty(t, b.HashID)

	s := events[1]
	assert.Equal(t, models.KindSell, s.Kind)
	assert.InDelta(t, 1040.0, s.Quantity, 1e-9) // thousands separator stripped
}

func TestParser_BackfillsMissingGBP(t *testing.T) {
	// No GBP columns at all: the rate comes from the calculator and the GBP
	// price is derived from it.
	input := `Record Type,Date,Qty.,Price Per Share,Order Type,Type,Grant Number
Buy,2023-07-03,10,64.50,Vest,Restricted Stock Unit,G100
`
	p := NewParser(newTestCalculator(t))
	events, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.InDelta(t, 1.25, events[0].FxRate, 1e-9)
	assert.InDelta(t, 64.50/1.25, events[0].UnitPriceGBP, 1e-9)
}

func TestParser_SkipsBadRows(t *testing.T) {
	input := `Record Type,Date,Qty.,Price Per Share,Order Type,Type,Grant Number
Dividend,2023-07-03,10,64.50,Div,RSU,G100
Buy,garbage,10,64.50,Vest,RSU,G100
Buy,2023-07-03,0,64.50,Vest,RSU,G100
Buy,2023-07-03,10,64.50,Vest,RSU,G100
Totals
`
	p := NewParser(newTestCalculator(t))
	events, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestParser_MissingRequiredColumns(t *testing.T) {
	input := `Record Type,Qty.
Buy,10
`
	p := NewParser(newTestCalculator(t))
	_, err := p.Parse(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")
}

func TestParser_DeduplicationHashIsStable(t *testing.T) {
	input := `Record Type,Date,Qty.,Price Per Share,Price Per Share GBP,Exchange Rate,Order Type,Type,Grant Number
Buy,2023-07-03,100,64.50,51.60,1.25,Vest,RSU,G100
`
	p := NewParser(newTestCalculator(t))
	first, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	second, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].HashID, second[0].HashID)
}

func TestGainsParser(t *testing.T) {
	input := `Date Sold,Qty.,Proceeds Per Share,Grant Number,Order Type,Type
07/05/2023,25,66.00,G200,Sell,Restricted Stock Unit
07/04/2023,10,65.00,G200,Sell,Restricted Stock Unit
`
	p := NewGainsParser(newTestCalculator(t))
	events, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)

	s := events[0]
	assert.Equal(t, models.KindSell, s.Kind)
	assert.Equal(t, "2023-07-05", s.Date)
	assert.InDelta(t, 66.00, s.UnitPriceUSD, 1e-9)
	assert.InDelta(t, 1.28, s.FxRate, 1e-9)
	assert.InDelta(t, 66.00/1.28, s.UnitPriceGBP, 1e-9)
	assert.Equal(t, "etrade-gains", s.Source)

	// The July 4th sale keeps its own date but prices at the July 5th rate.
	h := events[1]
	assert.Equal(t, "2023-07-04", h.Date)
	assert.InDelta(t, 1.28, h.FxRate, 1e-9)
}

func TestBenefitsParser(t *testing.T) {
	input := `Grant Number,Date,Event Type,Qty. or Amount
G300,07/01/2023,Shares released,50
G300,07/01/2023,Dividend credited,12.34
G300,07/04/2023,Shares released,30
`
	p := NewBenefitsParser(newTestCalculator(t))
	events, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Saturday July 1st vests on Monday July 3rd at that day's close and rate.
	v := events[0]
	assert.Equal(t, models.KindBuy, v.Kind)
	assert.Equal(t, "2023-07-03", v.Date)
	assert.InDelta(t, 50.0, v.Quantity, 1e-9)
	assert.InDelta(t, 64.50, v.UnitPriceUSD, 1e-9)
	assert.InDelta(t, 64.50/1.25, v.UnitPriceGBP, 1e-9)
	assert.Equal(t, "Vest", v.OrderType)
	assert.Equal(t, "Restricted Stock Unit", v.SecurityType)
	assert.Equal(t, "etrade-benefits", v.Source)

	// The holiday vest rolls to July 5th.
	assert.Equal(t, "2023-07-05", events[1].Date)
	assert.InDelta(t, 66.00, events[1].UnitPriceUSD, 1e-9)
}

func TestGainsParser_ConsolidatesSimilarPrices(t *testing.T) {
	// Two lots of one order: prices within 1% on the same day merge into a
	// single disposal with summed quantity, weighted prices and combined
	// grant numbers. The third row is outside the band and stays separate.
	input := `Date Sold,Qty.,Proceeds Per Share,Grant Number,Order Type,Type
07/05/2023,10,66.00,G2,Sell,Restricted Stock Unit
07/05/2023,30,66.30,G1,Sell,Restricted Stock Unit
07/05/2023,5,70.00,G3,Sell,Restricted Stock Unit
`
	p := NewGainsParser(newTestCalculator(t))
	events, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)

	m := events[0]
	assert.InDelta(t, 40.0, m.Quantity, 1e-9)
	assert.InDelta(t, (10*66.00+30*66.30)/40.0, m.UnitPriceUSD, 1e-6)
	assert.InDelta(t, (10*(66.00/1.28)+30*(66.30/1.28))/40.0, m.UnitPriceGBP, 1e-6)
	assert.InDelta(t, 1.28, m.FxRate, 1e-9)
	assert.Equal(t, "G1-G2", m.GrantID)
	assert.NotEmpty(t, m.HashID)

	assert.InDelta(t, 5.0, events[1].Quantity, 1e-9)
	assert.Equal(t, "G3", events[1].GrantID)
}

func TestConsolidateSimilarPrices_LeavesBuysAndOtherDaysAlone(t *testing.T) {
	events := []models.EventRecord{
		{Kind: models.KindBuy, Date: "2023-07-03", Quantity: 10, UnitPriceUSD: 66.00, GrantID: "G1"},
		{Kind: models.KindBuy, Date: "2023-07-03", Quantity: 20, UnitPriceUSD: 66.00, GrantID: "G2"},
		{Kind: models.KindSell, Date: "2023-07-05", Quantity: 10, UnitPriceUSD: 66.00, GrantID: "G1"},
		{Kind: models.KindSell, Date: "2023-07-06", Quantity: 10, UnitPriceUSD: 66.00, GrantID: "G2"},
	}
	out := consolidateSimilarPrices(events)
	assert.Equal(t, events, out)
}

func TestGainsParser_StripsUnprintableGrantIDs(t *testing.T) {
	input := "Date Sold,Qty.,Proceeds Per Share,Grant Number,Order Type,Type\n" +
		"07/05/2023,25,66.00,G2\x0000,Sell,Restricted Stock Unit\n"
	p := NewGainsParser(newTestCalculator(t))
	events, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "G200", events[0].GrantID)
}

func TestParseFlexibleDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "2023-07-03", want: "2023-07-03"},
		{in: "07/05/2023", want: "2023-07-05"},
		{in: "7/5/2023", want: "2023-07-05"},
		{in: " 2023-07-03 ", want: "2023-07-03"},
		{in: "03-07-2023", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFlexibleDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}
