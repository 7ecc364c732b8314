package processors

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/username/sharepool/src/logger"
	"github.com/username/sharepool/src/utils"
)

var (
	ErrStockPriceNotFound = errors.New("stock price not found")
	ErrFxRateNotFound     = errors.New("exchange rate not found")
	ErrNoMarketData       = errors.New("market data not loaded")
)

// VestPrice is the priced result for a vest date: the closing USD price, the
// USD/GBP rate, the derived GBP price and the actual (business-day adjusted)
// date the figures belong to.
type VestPrice struct {
	USDPrice   float64
	FxRate     float64
	GBPPrice   float64
	ActualDate time.Time
}

// VestPriceCalculator prices RSU vests in GBP from three local data files:
// daily stock closes, Bank of England USD/GBP daily averages, and a US
// holiday calendar. Vest dates falling on weekends or holidays are moved
// forward to the next business day before lookup, matching how brokers
// release the shares.
type VestPriceCalculator struct {
	stockPrices map[string]float64  // ISO date -> close price in USD
	forexRates  map[string]float64  // ISO date -> USD per GBP
	holidays    map[string]struct{} // ISO dates of market holidays
}

func NewVestPriceCalculator(stockPath, forexPath, holidayPath string) (*VestPriceCalculator, error) {
	stockPrices, err := loadPriceCSV(stockPath, "Close_Price")
	if err != nil {
		return nil, fmt.Errorf("loading stock prices from '%s': %w", stockPath, err)
	}
	forexRates, err := loadPriceCSV(forexPath, "Average")
	if err != nil {
		return nil, fmt.Errorf("loading forex rates from '%s': %w", forexPath, err)
	}
	holidays, err := loadHolidays(holidayPath)
	if err != nil {
		return nil, fmt.Errorf("loading holidays from '%s': %w", holidayPath, err)
	}

	if logger.L != nil {
		logger.L.Info("Vest price data loaded",
			"stockPrices", len(stockPrices), "forexRates", len(forexRates), "holidays", len(holidays))
	}

	return &VestPriceCalculator{
		stockPrices: stockPrices,
		forexRates:  forexRates,
		holidays:    holidays,
	}, nil
}

// GetVestPrice resolves the USD close, USD/GBP rate and GBP price for a vest
// date, adjusted to the next business day.
func (c *VestPriceCalculator) GetVestPrice(date time.Time) (VestPrice, error) {
	if c == nil {
		return VestPrice{}, ErrNoMarketData
	}
	actual := c.NextBusinessDay(date)
	key := utils.FormatISODate(actual)

	usd, ok := c.stockPrices[key]
	if !ok {
		return VestPrice{ActualDate: actual}, fmt.Errorf("%w for %s", ErrStockPriceNotFound, key)
	}
	rate, ok := c.forexRates[key]
	if !ok {
		return VestPrice{USDPrice: usd, ActualDate: actual}, fmt.Errorf("%w for %s", ErrFxRateNotFound, key)
	}

	return VestPrice{
		USDPrice:   usd,
		FxRate:     rate,
		GBPPrice:   usd / rate,
		ActualDate: actual,
	}, nil
}

// FxRateOn returns the USD/GBP rate for a date, adjusted to the next business
// day. Used for disposals, where the USD price comes from the broker file and
// only the conversion rate is needed.
func (c *VestPriceCalculator) FxRateOn(date time.Time) (float64, time.Time, error) {
	if c == nil {
		return 0, time.Time{}, ErrNoMarketData
	}
	actual := c.NextBusinessDay(date)
	key := utils.FormatISODate(actual)
	rate, ok := c.forexRates[key]
	if !ok {
		return 0, actual, fmt.Errorf("%w for %s", ErrFxRateNotFound, key)
	}
	return rate, actual, nil
}

// IsBusinessDay reports whether the date is a weekday that is not a holiday.
func (c *VestPriceCalculator) IsBusinessDay(date time.Time) bool {
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays[utils.FormatISODate(date)]
	return !holiday
}

// NextBusinessDay returns the date itself if it is a business day, otherwise
// the first business day after it.
func (c *VestPriceCalculator) NextBusinessDay(date time.Time) time.Time {
	for !c.IsBusinessDay(date) {
		date = date.AddDate(0, 0, 1)
	}
	return date
}

// loadPriceCSV reads a two-column CSV of (Date, value) rows, keyed by the
// named value column, into an ISO-date-indexed map.
func loadPriceCSV(path, valueColumn string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	dateIdx, valueIdx := -1, -1
	for i, col := range header {
		switch col {
		case "Date":
			dateIdx = i
		case valueColumn:
			valueIdx = i
		}
	}
	if dateIdx < 0 || valueIdx < 0 {
		return nil, fmt.Errorf("missing required columns Date/%s", valueColumn)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV records: %w", err)
	}

	values := make(map[string]float64, len(records))
	for _, record := range records {
		date := utils.ParseISODate(record[dateIdx])
		if date.IsZero() {
			continue
		}
		value, err := strconv.ParseFloat(record[valueIdx], 64)
		if err != nil {
			if logger.L != nil {
				logger.L.Warn("Skipping row with invalid value", "path", path, "date", record[dateIdx], "value", record[valueIdx])
			}
			continue
		}
		values[utils.FormatISODate(date)] = value
	}
	return values, nil
}

type holidayEntry struct {
	Date   string   `json:"date"`
	Global bool     `json:"global"`
	Types  []string `json:"types"`
}

// loadHolidays reads a Nager.Date style JSON export, keeping holidays that
// are global or not marked Optional.
func loadHolidays(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []holidayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshalling holidays: %w", err)
	}

	holidays := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Global || !containsString(e.Types, "Optional") {
			holidays[e.Date] = struct{}{}
		}
	}
	return holidays, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
