package services

import (
	"errors"
	"io"
	"time"

	"github.com/username/sharepool/src/models"
	"github.com/username/sharepool/src/processors"
)

var (
	ErrParsingFailed    = errors.New("parsing failed")
	ErrProcessingFailed = errors.New("processing failed")
)

// ExerciseEntry is a manually keyed non-qualified option exercise. The broker
// exports do not carry these, so they are entered through the API and priced
// like any other acquisition.
type ExerciseEntry struct {
	GrantID  string  `json:"grant_id"`
	Date     string  `json:"date"` // ISO 2006-01-02
	Quantity float64 `json:"quantity"`
	PriceUSD float64 `json:"price_usd"`
}

// UploadService owns the full pipeline: parse uploaded broker files, persist
// canonical events, run the matching engine, and cache the results.
type UploadService interface {
	ProcessUpload(fileReader io.Reader, userID int64, source string) (*processors.RunResult, error)
	GetReport(userID int64) (*processors.RunResult, error)
	GetEvents(userID int64) ([]models.EventRecord, error)
	AddExercise(userID int64, entry ExerciseEntry) (*models.EventRecord, error)
	DeleteAllEvents(userID int64) error
	InvalidateUserCache(userID int64)
	ReloadMarketData() error
}

// PriceService downloads the market data the vest price calculator runs on.
type PriceService interface {
	FetchDailyCloses(symbol string, from, to time.Time) (map[string]float64, error)
	FetchPublicHolidays(countryCode string, fromYear, toYear int) ([]byte, error)
	RefreshMarketData(ticker string, from, to time.Time) error
}
