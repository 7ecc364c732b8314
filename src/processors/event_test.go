package processors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/sharepool/src/models"
)

func TestNewEvent(t *testing.T) {
	tests := []struct {
		name     string
		record   models.EventRecord
		wantOK   bool
		wantKind EventKind
	}{
		{
			name:     "buy record",
			record:   models.EventRecord{Kind: models.KindBuy, Date: "2023-04-10", Quantity: 10, UnitPriceGBP: 5},
			wantOK:   true,
			wantKind: Acquisition,
		},
		{
			name:     "sell record",
			record:   models.EventRecord{Kind: models.KindSell, Date: "2023-04-10", Quantity: 10, UnitPriceGBP: 5},
			wantOK:   true,
			wantKind: Disposal,
		},
		{
			name:   "unknown kind",
			record: models.EventRecord{Kind: "DIVIDEND", Date: "2023-04-10", Quantity: 10},
			wantOK: false,
		},
		{
			name:   "unparseable date",
			record: models.EventRecord{Kind: models.KindBuy, Date: "10/04/2023x", Quantity: 10},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := NewEvent(tt.record)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantKind, ev.Kind)
				assert.Equal(t, tt.record.Quantity, ev.Quantity)
			}
		})
	}
}

func TestEventValid(t *testing.T) {
	base := func() Event {
		ev, ok := NewEvent(models.EventRecord{
			Kind: models.KindBuy, Date: "2023-04-10", Quantity: 10,
			UnitPriceGBP: 5, UnitPriceUSD: 6.3, FxRate: 1.26,
		})
		require.True(t, ok)
		return ev
	}

	t.Run("well formed", func(t *testing.T) {
		assert.True(t, base().Valid())
	})
	t.Run("zero quantity", func(t *testing.T) {
		ev := base()
		ev.Quantity = 0
		assert.False(t, ev.Valid())
	})
	t.Run("negative quantity", func(t *testing.T) {
		ev := base()
		ev.Quantity = -1
		assert.False(t, ev.Valid())
	})
	t.Run("NaN quantity", func(t *testing.T) {
		ev := base()
		ev.Quantity = math.NaN()
		assert.False(t, ev.Valid())
	})
	t.Run("negative price", func(t *testing.T) {
		ev := base()
		ev.UnitPriceGBP = -0.01
		assert.False(t, ev.Valid())
	})
	t.Run("infinite rate", func(t *testing.T) {
		ev := base()
		ev.FxRate = math.Inf(1)
		assert.False(t, ev.Valid())
	})
	t.Run("zero prices are allowed", func(t *testing.T) {
		ev := base()
		ev.UnitPriceGBP = 0
		ev.UnitPriceUSD = 0
		ev.FxRate = 0
		assert.True(t, ev.Valid())
	})
}
