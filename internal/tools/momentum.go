package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sectorpulse/internal/datasource"
	"sectorpulse/internal/llm"
	"sectorpulse/pkg/models"
)

const (
	momentumLookback = 90 * 24 * time.Hour
	smaWindow        = 50
)

// MarketSource is the price history surface the momentum tool reads.
type MarketSource interface {
	DailyCloses(ctx context.Context, ticker string, lookback time.Duration) ([]models.PricePoint, error)
}

// Momentum classifies a sector's trend by comparing its proxy ETF's latest
// close against a 50-day simple moving average.
type Momentum struct {
	source MarketSource
}

// NewMomentum creates the momentum tool.
func NewMomentum(source MarketSource) *Momentum {
	return &Momentum{source: source}
}

// MomentumEntry returns the catalog entry for the momentum tool.
func MomentumEntry(source MarketSource) Entry {
	return Entry{
		Descriptor: llm.Tool{
			Name:        "get_sector_etf_momentum",
			Description: "Compute the price momentum signal for a sector via its proxy ETF: latest close against the 50-day simple moving average.",
			Parameters: llm.ObjectSchema("",
				map[string]*llm.JSONSchema{
					"sector_name": llm.StringProp("Sector to analyze, e.g. semiconductors, biotech, ai, defense, blockchain."),
				},
				"sector_name"),
		},
		Slot:    models.SlotMomentum,
		Handler: NewMomentum(source),
	}
}

type momentumArgs struct {
	SectorName string `json:"sector_name"`
}

// Run resolves the sector's ETF, fetches the trailing series, and classifies.
func (m *Momentum) Run(ctx context.Context, args json.RawMessage) models.SlotDelta {
	var a momentumArgs
	if err := decodeArgs(args, &a); err != nil {
		return models.FailedDelta(models.SlotMomentum, err)
	}

	ticker := datasource.TickerForSector(a.SectorName)
	points, err := m.source.DailyCloses(ctx, ticker, momentumLookback)
	if err != nil {
		return models.FailedDelta(models.SlotMomentum, err)
	}
	if len(points) == 0 {
		return models.FailedDelta(models.SlotMomentum,
			fmt.Errorf("%w: no closes for %s", datasource.ErrDataUnavailable, ticker))
	}

	latest := points[len(points)-1].Close
	sma := datasource.SMA(points, smaWindow)

	result := &models.MomentumResult{
		Sector:      a.SectorName,
		Ticker:      ticker,
		LatestClose: latest,
		SMA:         sma,
		Signal:      classify(latest, sma),
	}
	return models.OKDelta(models.SlotMomentum, result)
}

func classify(latest, sma float64) models.MomentumSignal {
	switch {
	case latest > sma:
		return models.MomentumPositive
	case latest < sma:
		return models.MomentumNegative
	default:
		return models.MomentumNeutral
	}
}
