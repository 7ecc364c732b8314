package services

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/sharepool/src/config"
	"github.com/username/sharepool/src/database"
	"github.com/username/sharepool/src/logger"
	"github.com/username/sharepool/src/models"
	"github.com/username/sharepool/src/parsers"
	"github.com/username/sharepool/src/processors"
	"github.com/username/sharepool/src/utils"
)

const (
	ckReport = "res_cgt_report_user_%d"
	ckEvents = "res_events_user_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type uploadServiceImpl struct {
	disposalProcessor processors.DisposalProcessor
	reportCache       *cache.Cache

	mu     sync.RWMutex
	prices *processors.VestPriceCalculator
}

func NewUploadService(
	disposalProcessor processors.DisposalProcessor,
	prices *processors.VestPriceCalculator,
	reportCache *cache.Cache,
) UploadService {
	return &uploadServiceImpl{
		disposalProcessor: disposalProcessor,
		prices:            prices,
		reportCache:       reportCache,
	}
}

func (s *uploadServiceImpl) calculator() *processors.VestPriceCalculator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prices
}

// ReloadMarketData rebuilds the vest price calculator from the configured
// data files, picking up freshly downloaded rates and prices.
func (s *uploadServiceImpl) ReloadMarketData() error {
	prices, err := processors.NewVestPriceCalculator(
		config.Cfg.StockPricePath, config.Cfg.ForexRatePath, config.Cfg.HolidayPath)
	if err != nil {
		return fmt.Errorf("reloading market data: %w", err)
	}
	s.mu.Lock()
	s.prices = prices
	s.mu.Unlock()
	logger.L.Info("Market data reloaded")
	return nil
}

func (s *uploadServiceImpl) ProcessUpload(fileReader io.Reader, userID int64, source string) (*processors.RunResult, error) {
	overallStartTime := time.Now()
	logger.L.Info("ProcessUpload START", "userID", userID, "source", source)

	parser, err := parsers.GetParser(source, s.calculator())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	records, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	records = filterExcludedSecurityTypes(records)
	if len(records) == 0 {
		return s.GetReport(userID)
	}

	if err := s.insertEvents(userID, records); err != nil {
		return nil, err
	}

	s.InvalidateUserCache(userID)

	logger.L.Info("ProcessUpload END", "userID", userID, "duration", time.Since(overallStartTime))
	return s.GetReport(userID)
}

// filterExcludedSecurityTypes drops records whose security type is configured
// out of the pool, e.g. option grants taxed outside the CGT regime.
func filterExcludedSecurityTypes(records []models.EventRecord) []models.EventRecord {
	if config.Cfg == nil || len(config.Cfg.ExcludedSecurityTypes) == 0 {
		return records
	}
	kept := records[:0]
	for _, rec := range records {
		excluded := false
		for _, t := range config.Cfg.ExcludedSecurityTypes {
			if strings.EqualFold(rec.SecurityType, t) {
				excluded = true
				break
			}
		}
		if excluded {
			logger.L.Debug("Excluding record by security type", "securityType", rec.SecurityType, "date", rec.Date)
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

func (s *uploadServiceImpl) insertEvents(userID int64, records []models.EventRecord) error {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO events (user_id, kind, date, quantity, unit_price_gbp, unit_price_usd, fx_rate, grant_id, order_type, security_type, source, hash_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.Exec(userID, rec.Kind, rec.Date, rec.Quantity, rec.UnitPriceGBP,
			rec.UnitPriceUSD, rec.FxRate, rec.GrantID, rec.OrderType, rec.SecurityType, rec.Source, rec.HashID)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				logger.L.Debug("Skipping duplicate event on upload", "userID", userID, "hash_id", rec.HashID)
				continue
			}
			return fmt.Errorf("error inserting event (grant %s, date %s): %w", rec.GrantID, rec.Date, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("error committing events: %w", err)
	}
	return nil
}

// GetReport runs the matching engine over every stored event for the user.
// Results are cached until the next upload or delete; engine aborts are never
// cached.
func (s *uploadServiceImpl) GetReport(userID int64) (*processors.RunResult, error) {
	cacheKey := fmt.Sprintf(ckReport, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for CGT report", "userID", userID)
		return cached.(*processors.RunResult), nil
	}
	logger.L.Info("Cache miss for CGT report, recalculating from DB", "userID", userID)

	records, err := s.GetEvents(userID)
	if err != nil {
		return nil, err
	}

	result, err := s.disposalProcessor.Process(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	s.reportCache.Set(cacheKey, result, cache.NoExpiration)
	return result, nil
}

func (s *uploadServiceImpl) GetEvents(userID int64) ([]models.EventRecord, error) {
	cacheKey := fmt.Sprintf(ckEvents, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.EventRecord), nil
	}

	rows, err := database.DB.Query(`SELECT id, kind, date, quantity, unit_price_gbp, unit_price_usd, fx_rate, grant_id, order_type, security_type, source, hash_id FROM events WHERE user_id = ? ORDER BY date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying events for userID %d: %w", userID, err)
	}
	defer rows.Close()

	var records []models.EventRecord
	for rows.Next() {
		var rec models.EventRecord
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Date, &rec.Quantity, &rec.UnitPriceGBP,
			&rec.UnitPriceUSD, &rec.FxRate, &rec.GrantID, &rec.OrderType, &rec.SecurityType,
			&rec.Source, &rec.HashID); err != nil {
			return nil, fmt.Errorf("error scanning event row for userID %d: %w", userID, err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over event rows for userID %d: %w", userID, err)
	}

	s.reportCache.Set(cacheKey, records, DefaultCacheExpiration)
	logger.L.Debug("DB fetch complete", "userID", userID, "eventCount", len(records))
	return records, nil
}

// AddExercise records a manually entered option exercise as an acquisition,
// priced in GBP with the rate on the (business-day adjusted) exercise date.
func (s *uploadServiceImpl) AddExercise(userID int64, entry ExerciseEntry) (*models.EventRecord, error) {
	date := utils.ParseISODate(entry.Date)
	if date.IsZero() {
		return nil, fmt.Errorf("%w: invalid exercise date %q", ErrParsingFailed, entry.Date)
	}
	if entry.Quantity <= 0 {
		return nil, fmt.Errorf("%w: exercise quantity must be positive", ErrParsingFailed)
	}
	if entry.PriceUSD < 0 {
		return nil, fmt.Errorf("%w: exercise price must not be negative", ErrParsingFailed)
	}

	fxRate, actualDate, err := s.calculator().FxRateOn(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	grantID := strings.TrimSpace(entry.GrantID)
	if grantID == "" {
		grantID = uuid.NewString()
	}

	rec := models.EventRecord{
		Kind:         models.KindBuy,
		Date:         utils.FormatISODate(actualDate),
		Quantity:     entry.Quantity,
		UnitPriceGBP: entry.PriceUSD / fxRate,
		UnitPriceUSD: entry.PriceUSD,
		FxRate:       fxRate,
		GrantID:      grantID,
		OrderType:    "Exercise",
		SecurityType: "Non-Qualified Stock Option",
		Source:       "manual",
	}
	rec.HashID = uuid.NewString() // manual entries are never deduplicated

	if err := s.insertEvents(userID, []models.EventRecord{rec}); err != nil {
		return nil, err
	}
	s.InvalidateUserCache(userID)
	return &rec, nil
}

func (s *uploadServiceImpl) DeleteAllEvents(userID int64) error {
	if _, err := database.DB.Exec(`DELETE FROM events WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("error deleting events for userID %d: %w", userID, err)
	}
	s.InvalidateUserCache(userID)
	logger.L.Info("Deleted all events for user", "userID", userID)
	return nil
}

// InvalidateUserCache clears all cached data for a user, forcing a complete
// recalculation on the next request.
func (s *uploadServiceImpl) InvalidateUserCache(userID int64) {
	s.reportCache.Delete(fmt.Sprintf(ckReport, userID))
	s.reportCache.Delete(fmt.Sprintf(ckEvents, userID))
	logger.L.Debug("Invalidated caches for user", "userID", userID)
}
