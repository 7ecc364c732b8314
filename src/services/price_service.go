package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/username/sharepool/src/config"
	"github.com/username/sharepool/src/logger"
	"golang.org/x/net/publicsuffix"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

// yahooChartResponse matches the v8 chart endpoint, which serves historical
// daily candles for both equities and FX pairs like GBPUSD=X.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// priceServiceImpl downloads the historical market data the vest price
// calculator needs: daily stock closes, GBPUSD daily closes, and the US
// public holiday calendar. Yahoo requires a warmed-up cookie session.
type priceServiceImpl struct {
	httpClient http.Client
}

// NewPriceService creates a new instance of the price service with a cookie
// jar, and warms the Yahoo session so the chart endpoint accepts requests.
func NewPriceService() PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	s := &priceServiceImpl{
		httpClient: http.Client{
			Jar:     jar,
			Timeout: 20 * time.Second,
		},
	}

	if err := s.initializeYahooSession(); err != nil {
		logger.L.Error("Failed to initialize Yahoo Finance session. Price fetching may fail.", "error", err)
	}

	return s
}

// initializeYahooSession visits a Yahoo Finance page to collect cookies.
func (s *priceServiceImpl) initializeYahooSession() error {
	logger.L.Info("Initializing Yahoo Finance session...")
	req, err := http.NewRequest("GET", "https://finance.yahoo.com/quote/GBPUSD=X", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make initial request to Yahoo: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	logger.L.Info("Yahoo Finance session initialized.")
	return nil
}

// FetchDailyCloses downloads daily close prices for a symbol over a date
// range, keyed by ISO date.
func (s *priceServiceImpl) FetchDailyCloses(symbol string, from, to time.Time) (map[string]float64, error) {
	chartURL := fmt.Sprintf(
		"https://query1.finance.yahoo.com/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		symbol, from.Unix(), to.Unix())
	req, err := http.NewRequest("GET", chartURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Yahoo chart API for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("yahoo chart API returned non-OK status %d for %s. Body: %s", resp.StatusCode, symbol, string(bodyBytes))
	}

	var chartData yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartData); err != nil {
		return nil, fmt.Errorf("failed to decode Yahoo chart response for %s: %w", symbol, err)
	}
	if chartData.Chart.Error != nil || len(chartData.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo chart API returned an error or no result for %s", symbol)
	}

	result := chartData.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo chart API returned no quote data for %s", symbol)
	}
	closes := result.Indicators.Quote[0].Close

	prices := make(map[string]float64, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == 0 {
			continue
		}
		date := time.Unix(ts, 0).UTC().Format("2006-01-02")
		prices[date] = closes[i]
	}

	logger.L.Info("Fetched daily closes", "symbol", symbol, "count", len(prices))
	return prices, nil
}

// FetchPublicHolidays downloads public holidays for a range of years from the
// Nager.Date API and returns them as one merged JSON array.
func (s *priceServiceImpl) FetchPublicHolidays(countryCode string, fromYear, toYear int) ([]byte, error) {
	var allHolidays []json.RawMessage
	for year := fromYear; year <= toYear; year++ {
		url := fmt.Sprintf("https://date.nager.at/api/v3/PublicHolidays/%d/%s", year, countryCode)
		req, err := http.NewRequest("GET", url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch holidays for %d: %w", year, err)
		}

		var yearHolidays []json.RawMessage
		err = json.NewDecoder(resp.Body).Decode(&yearHolidays)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode holidays for %d: %w", year, err)
		}
		allHolidays = append(allHolidays, yearHolidays...)

		time.Sleep(250 * time.Millisecond) // respectful delay
	}

	return json.Marshal(allHolidays)
}

// RefreshMarketData downloads stock closes, GBPUSD rates and holidays for the
// given range and rewrites the configured data files.
func (s *priceServiceImpl) RefreshMarketData(ticker string, from, to time.Time) error {
	stockPrices, err := s.FetchDailyCloses(ticker, from, to)
	if err != nil {
		return fmt.Errorf("fetching stock closes: %w", err)
	}
	if err := writePriceCSV(config.Cfg.StockPricePath, "Close_Price", stockPrices); err != nil {
		return err
	}

	fxRates, err := s.FetchDailyCloses("GBPUSD=X", from, to)
	if err != nil {
		return fmt.Errorf("fetching GBPUSD rates: %w", err)
	}
	if err := writePriceCSV(config.Cfg.ForexRatePath, "Average", fxRates); err != nil {
		return err
	}

	holidays, err := s.FetchPublicHolidays("US", from.Year(), to.Year())
	if err != nil {
		return fmt.Errorf("fetching holidays: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(config.Cfg.HolidayPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(config.Cfg.HolidayPath, holidays, 0o644); err != nil {
		return fmt.Errorf("writing holiday file: %w", err)
	}

	logger.L.Info("Market data refreshed",
		"ticker", ticker, "stockPrices", len(stockPrices), "fxRates", len(fxRates))
	return nil
}

func writePriceCSV(path, valueColumn string, values map[string]float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating '%s': %w", path, err)
	}
	defer f.Close()

	dates := make([]string, 0, len(values))
	for date := range values {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	writer := csv.NewWriter(f)
	if err := writer.Write([]string{"Date", valueColumn}); err != nil {
		return err
	}
	for _, date := range dates {
		if err := writer.Write([]string{date, strconv.FormatFloat(values[date], 'f', -1, 64)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
