// Parsers for E*Trade exports: the consolidated transaction CSV produced by
// the reconciliation step, the raw gains/losses export, and the raw benefits
// export. All of them emit canonical event records priced in both USD and GBP.
package etrade

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/username/sharepool/src/models"
	"github.com/username/sharepool/src/processors"
	"github.com/username/sharepool/src/security/validation"
	"github.com/username/sharepool/src/utils"
)

// Parser reads the consolidated transaction CSV: one row per buy (vest or
// option exercise) or sell, already carrying USD prices and, usually, GBP
// prices and the rate that links them. Missing GBP figures are backfilled
// from the vest price calculator.
type Parser struct {
	prices *processors.VestPriceCalculator
}

func NewParser(prices *processors.VestPriceCalculator) *Parser {
	return &Parser{prices: prices}
}

func (p *Parser) Parse(file io.Reader) ([]models.EventRecord, error) {
	rows, header, err := readAll(file)
	if err != nil {
		return nil, err
	}

	col, err := columnIndex(header,
		"Record Type", "Date", "Qty.", "Price Per Share", "Order Type", "Type", "Grant Number")
	if err != nil {
		return nil, err
	}
	// Optional enrichment columns.
	gbpIdx := indexOf(header, "Price Per Share GBP")
	fxIdx := indexOf(header, "Exchange Rate")

	var events []models.EventRecord
	for _, row := range rows {
		kind, ok := classifyRecordType(row[col["Record Type"]])
		if !ok {
			log.Printf("Skipping row with unknown record type: %s", row[col["Record Type"]])
			continue
		}

		date, err := parseFlexibleDate(row[col["Date"]])
		if err != nil {
			log.Printf("Skipping row due to invalid date: %s", row[col["Date"]])
			continue
		}

		quantity, _ := strconv.ParseFloat(strings.ReplaceAll(row[col["Qty."]], ",", ""), 64)
		if quantity <= 0 {
			log.Printf("Skipping row with non-positive quantity on %s", row[col["Date"]])
			continue
		}
		usdPrice, _ := strconv.ParseFloat(row[col["Price Per Share"]], 64)

		var gbpPrice, fxRate float64
		if gbpIdx >= 0 {
			gbpPrice, _ = strconv.ParseFloat(row[gbpIdx], 64)
		}
		if fxIdx >= 0 {
			fxRate, _ = strconv.ParseFloat(row[fxIdx], 64)
		}
		if gbpPrice == 0 || fxRate == 0 {
			rate, _, err := p.prices.FxRateOn(date)
			if err != nil {
				log.Printf("Skipping row: no exchange rate for %s: %v", row[col["Date"]], err)
				continue
			}
			fxRate = rate
			gbpPrice = usdPrice / rate
		}

		events = append(events, newRecord(kind, date, quantity, usdPrice, gbpPrice, fxRate,
			row[col["Grant Number"]], row[col["Order Type"]], row[col["Type"]], "etrade"))
	}
	return events, nil
}

// GainsParser reads the raw gains/losses export and emits one disposal per
// sale row. GBP proceeds are derived from the USD proceeds per share and the
// rate on the (business-day adjusted) sale date.
type GainsParser struct {
	prices *processors.VestPriceCalculator
}

func NewGainsParser(prices *processors.VestPriceCalculator) *GainsParser {
	return &GainsParser{prices: prices}
}

func (p *GainsParser) Parse(file io.Reader) ([]models.EventRecord, error) {
	rows, header, err := readAll(file)
	if err != nil {
		return nil, err
	}

	col, err := columnIndex(header, "Date Sold", "Qty.", "Proceeds Per Share", "Grant Number")
	if err != nil {
		return nil, err
	}
	orderIdx := indexOf(header, "Order Type")
	typeIdx := indexOf(header, "Type")

	var events []models.EventRecord
	for _, row := range rows {
		date, err := parseFlexibleDate(row[col["Date Sold"]])
		if err != nil {
			log.Printf("Skipping sale row due to invalid date: %s", row[col["Date Sold"]])
			continue
		}
		quantity, _ := strconv.ParseFloat(strings.ReplaceAll(row[col["Qty."]], ",", ""), 64)
		if quantity <= 0 {
			continue
		}
		usdPrice, _ := strconv.ParseFloat(row[col["Proceeds Per Share"]], 64)

		fxRate, _, err := p.prices.FxRateOn(date)
		if err != nil {
			log.Printf("Skipping sale row: no exchange rate for %s: %v", row[col["Date Sold"]], err)
			continue
		}

		orderType, securityType := "Sell", ""
		if orderIdx >= 0 {
			orderType = row[orderIdx]
		}
		if typeIdx >= 0 {
			securityType = row[typeIdx]
		}

		events = append(events, newRecord(models.KindSell, date, quantity,
			usdPrice, usdPrice/fxRate, fxRate, row[col["Grant Number"]], orderType, securityType, "etrade-gains"))
	}
	return consolidateSimilarPrices(events), nil
}

// Sales within this relative price band on the same day are treated as lots
// of a single order.
const priceTolerance = 0.01

// consolidateSimilarPrices merges same-day disposals of the same order and
// security type whose USD prices sit within the tolerance band of the first
// such row. Brokers report one row per lot even when a single order filled
// them all; the merged record carries the summed quantity, quantity-weighted
// average prices, the most common exchange rate and the combined grant
// numbers. Acquisitions are never consolidated.
func consolidateSimilarPrices(events []models.EventRecord) []models.EventRecord {
	if len(events) < 2 {
		return events
	}

	out := make([]models.EventRecord, 0, len(events))
	merged := make([]bool, len(events))
	for i := range events {
		if merged[i] {
			continue
		}
		base := events[i]
		if base.Kind != models.KindSell {
			out = append(out, base)
			continue
		}

		group := []int{i}
		for j := i + 1; j < len(events); j++ {
			if merged[j] {
				continue
			}
			cand := events[j]
			if cand.Kind != models.KindSell || cand.Date != base.Date ||
				cand.OrderType != base.OrderType || cand.SecurityType != base.SecurityType {
				continue
			}
			if cand.UnitPriceUSD < base.UnitPriceUSD*(1-priceTolerance) ||
				cand.UnitPriceUSD > base.UnitPriceUSD*(1+priceTolerance) {
				continue
			}
			group = append(group, j)
		}
		if len(group) == 1 {
			out = append(out, base)
			continue
		}

		var totalQty, usdSum, gbpSum float64
		grants := make(map[string]struct{})
		rateCount := make(map[float64]int)
		for _, idx := range group {
			merged[idx] = true
			rec := events[idx]
			totalQty += rec.Quantity
			usdSum += rec.UnitPriceUSD * rec.Quantity
			gbpSum += rec.UnitPriceGBP * rec.Quantity
			rateCount[rec.FxRate]++
			for _, g := range strings.Split(rec.GrantID, "-") {
				if g != "" {
					grants[g] = struct{}{}
				}
			}
		}

		// Most common rate; first seen wins a tie.
		var fxRate float64
		bestCount := 0
		for _, idx := range group {
			if c := rateCount[events[idx].FxRate]; c > bestCount {
				bestCount = c
				fxRate = events[idx].FxRate
			}
		}

		rec := base
		rec.Quantity = totalQty
		rec.UnitPriceUSD = utils.RoundFloat(usdSum/totalQty, 6)
		rec.UnitPriceGBP = utils.RoundFloat(gbpSum/totalQty, 6)
		rec.FxRate = fxRate
		rec.GrantID = joinGrants(grants)
		rec.HashID = hashRecord(rec)
		out = append(out, rec)
	}
	return out
}

func joinGrants(grants map[string]struct{}) string {
	list := make([]string, 0, len(grants))
	for g := range grants {
		list = append(list, g)
	}
	sort.Strings(list)
	return strings.Join(list, "-")
}

// BenefitsParser reads the raw benefits export and turns every
// "Shares released" event into an acquisition, priced at the vest-date fair
// market value via the vest price calculator. Vest dates on weekends or
// holidays are moved to the next business day, matching the actual release.
type BenefitsParser struct {
	prices *processors.VestPriceCalculator
}

func NewBenefitsParser(prices *processors.VestPriceCalculator) *BenefitsParser {
	return &BenefitsParser{prices: prices}
}

func (p *BenefitsParser) Parse(file io.Reader) ([]models.EventRecord, error) {
	rows, header, err := readAll(file)
	if err != nil {
		return nil, err
	}

	col, err := columnIndex(header, "Grant Number", "Date", "Event Type", "Qty. or Amount")
	if err != nil {
		return nil, err
	}

	var events []models.EventRecord
	for _, row := range rows {
		if !strings.EqualFold(strings.TrimSpace(row[col["Event Type"]]), "Shares released") {
			continue
		}
		date, err := parseFlexibleDate(row[col["Date"]])
		if err != nil {
			log.Printf("Skipping vest row due to invalid date: %s", row[col["Date"]])
			continue
		}
		quantity, _ := strconv.ParseFloat(strings.ReplaceAll(row[col["Qty. or Amount"]], ",", ""), 64)
		if quantity <= 0 {
			continue
		}

		vest, err := p.prices.GetVestPrice(date)
		if err != nil {
			log.Printf("Skipping vest row: cannot price vest on %s: %v", row[col["Date"]], err)
			continue
		}

		events = append(events, newRecord(models.KindBuy, vest.ActualDate, quantity,
			vest.USDPrice, vest.GBPPrice, vest.FxRate,
			row[col["Grant Number"]], "Vest", "Restricted Stock Unit", "etrade-benefits"))
	}
	return events, nil
}

func newRecord(kind string, date time.Time, quantity, usdPrice, gbpPrice, fxRate float64,
	grantID, orderType, securityType, source string) models.EventRecord {

	// Broker exports are untrusted text; drop stray control characters
	// before the values reach the database or a CSV export.
	rec := models.EventRecord{
		Kind:         kind,
		Date:         utils.FormatISODate(date),
		Quantity:     quantity,
		UnitPriceGBP: gbpPrice,
		UnitPriceUSD: usdPrice,
		FxRate:       fxRate,
		GrantID:      strings.TrimSpace(validation.StripUnprintable(grantID)),
		OrderType:    strings.TrimSpace(validation.StripUnprintable(orderType)),
		SecurityType: strings.TrimSpace(validation.StripUnprintable(securityType)),
		Source:       source,
	}
	rec.HashID = hashRecord(rec)
	return rec
}

// hashRecord derives a stable dedupe key so re-uploading the same file does
// not duplicate events.
func hashRecord(rec models.EventRecord) string {
	input := fmt.Sprintf("%s|%s|%v|%v|%s|%s",
		rec.Kind, rec.Date, rec.Quantity, rec.UnitPriceUSD, rec.GrantID, rec.Source)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func readAll(file io.Reader) ([][]string, []string, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	// Drop ragged rows shorter than the header; E*Trade exports pad totals
	// rows at the bottom.
	var rows [][]string
	for _, record := range records {
		if len(record) >= len(header) {
			rows = append(rows, record)
		}
	}
	return rows, header, nil
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	col := make(map[string]int, len(required))
	var missing []string
	for _, name := range required {
		idx := indexOf(header, name)
		if idx < 0 {
			missing = append(missing, name)
			continue
		}
		col[name] = idx
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return col, nil
}

func indexOf(header []string, name string) int {
	for i, col := range header {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

func classifyRecordType(recordType string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(recordType)) {
	case "BUY":
		return models.KindBuy, true
	case "SELL":
		return models.KindSell, true
	}
	return "", false
}

// parseFlexibleDate accepts ISO dates and the US-style dates raw E*Trade
// exports use.
func parseFlexibleDate(dateStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	for _, layout := range []string{utils.ISODateFormat, "01/02/2006", "1/2/2006"} {
		if t, err := time.Parse(layout, dateStr); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", dateStr)
}
