package processors

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestCalculator(t *testing.T) *VestPriceCalculator {
	t.Helper()
	stockPath := writeTempFile(t, "stock.csv", `Date,Close_Price
2023-07-03,64.50
2023-07-05,66.00
2023-07-06,65.25
`)
	forexPath := writeTempFile(t, "forex.csv", `Date,Average
2023-07-03,1.27
2023-07-05,1.28
2023-07-06,1.275
`)
	// July 4th is a global US holiday; the optional-only entry must be ignored.
	holidayPath := writeTempFile(t, "holidays.json", `[
	  {"date": "2023-07-04", "global": true, "types": ["Public"]},
	  {"date": "2023-07-06", "global": false, "types": ["Optional"]}
	]`)

	calc, err := NewVestPriceCalculator(stockPath, forexPath, holidayPath)
	require.NoError(t, err)
	return calc
}

func mustDate(t *testing.T, iso string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", iso)
	require.NoError(t, err)
	return d
}

func TestGetVestPrice_BusinessDay(t *testing.T) {
	calc := newTestCalculator(t)

	vp, err := calc.GetVestPrice(mustDate(t, "2023-07-03"))
	require.NoError(t, err)
	assert.InDelta(t, 64.50, vp.USDPrice, 1e-9)
	assert.InDelta(t, 1.27, vp.FxRate, 1e-9)
	assert.InDelta(t, 64.50/1.27, vp.GBPPrice, 1e-9)
	assert.Equal(t, "2023-07-03", vp.ActualDate.Format("2006-01-02"))
}

func TestGetVestPrice_WeekendRollsForward(t *testing.T) {
	calc := newTestCalculator(t)

	// Saturday July 1st rolls to Monday July 3rd.
	vp, err := calc.GetVestPrice(mustDate(t, "2023-07-01"))
	require.NoError(t, err)
	assert.Equal(t, "2023-07-03", vp.ActualDate.Format("2006-01-02"))
	assert.InDelta(t, 64.50, vp.USDPrice, 1e-9)
}

func TestGetVestPrice_HolidayRollsForward(t *testing.T) {
	calc := newTestCalculator(t)

	// The 4th is a holiday, so the vest prices on the 5th.
	vp, err := calc.GetVestPrice(mustDate(t, "2023-07-04"))
	require.NoError(t, err)
	assert.Equal(t, "2023-07-05", vp.ActualDate.Format("2006-01-02"))
	assert.InDelta(t, 66.00, vp.USDPrice, 1e-9)
	assert.InDelta(t, 1.28, vp.FxRate, 1e-9)
}

func TestGetVestPrice_OptionalHolidayDoesNotRoll(t *testing.T) {
	calc := newTestCalculator(t)

	// July 6th carries only an Optional, non-global entry, so it stays a
	// business day.
	vp, err := calc.GetVestPrice(mustDate(t, "2023-07-06"))
	require.NoError(t, err)
	assert.Equal(t, "2023-07-06", vp.ActualDate.Format("2006-01-02"))
}

func TestGetVestPrice_MissingData(t *testing.T) {
	calc := newTestCalculator(t)

	_, err := calc.GetVestPrice(mustDate(t, "2023-07-07"))
	assert.ErrorIs(t, err, ErrStockPriceNotFound)
}

func TestFxRateOn(t *testing.T) {
	calc := newTestCalculator(t)

	rate, actual, err := calc.FxRateOn(mustDate(t, "2023-07-04"))
	require.NoError(t, err)
	assert.InDelta(t, 1.28, rate, 1e-9)
	assert.Equal(t, "2023-07-05", actual.Format("2006-01-02"))
}

func TestVestPriceCalculator_NilIsSafe(t *testing.T) {
	var calc *VestPriceCalculator

	_, err := calc.GetVestPrice(mustDate(t, "2023-07-03"))
	assert.ErrorIs(t, err, ErrNoMarketData)

	_, _, err = calc.FxRateOn(mustDate(t, "2023-07-03"))
	assert.ErrorIs(t, err, ErrNoMarketData)
}

func TestNewVestPriceCalculator_MissingFile(t *testing.T) {
	_, err := NewVestPriceCalculator("does-not-exist.csv", "also-missing.csv", "nope.json")
	assert.Error(t, err)
}
