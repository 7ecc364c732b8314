package parsers

import (
	"io"

	"github.com/username/sharepool/src/models"
)

// Parser turns one uploaded broker file into canonical event records, fully
// enriched with GBP prices and FX rates. Rows a parser cannot classify or
// price are skipped, not fatal.
type Parser interface {
	Parse(file io.Reader) ([]models.EventRecord, error)
}
