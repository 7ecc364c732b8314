package parsers

import (
	"fmt"

	"github.com/username/sharepool/src/parsers/etrade"
	"github.com/username/sharepool/src/processors"
)

func GetParser(source string, prices *processors.VestPriceCalculator) (Parser, error) {
	switch source {
	case "etrade":
		return etrade.NewParser(prices), nil
	case "etrade-gains":
		return etrade.NewGainsParser(prices), nil
	case "etrade-benefits":
		return etrade.NewBenefitsParser(prices), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
