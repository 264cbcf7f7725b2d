// Package riskmodel derives return statistics from historical close prices:
// the mean-return vector and sample covariance matrix a QUBO build consumes.
package riskmodel

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/aristath/qfolio/internal/modules/universe"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Constants for risk model configuration
const (
	DefaultLookbackDays = 252 // 1 year of trading days

	// MaxMissingFraction is the missing-data tolerance: an asset missing
	// more than this share of the aligned window is dropped from the run.
	MaxMissingFraction = 0.10

	// MinObservations is the minimum number of daily returns required to
	// produce a covariance estimate.
	MinObservations = 2
)

// PriceSource supplies historical close prices. universe.HistoryDB
// satisfies it; tests supply fixtures.
type PriceSource interface {
	GetDailyPrices(isin string, days int) ([]universe.DailyPrice, error)
}

// DroppedAsset records an asset excluded from a statistics build and why.
type DroppedAsset struct {
	ISIN   string `json:"isin"`
	Reason string `json:"reason"`
}

// Statistics holds the return statistics for an ordered asset universe.
// MeanReturns and Covariance are indexed by position in ISINs. The
// covariance matrix is symmetric by construction (sample covariance,
// N-1 denominator).
type Statistics struct {
	ISINs        []string       `json:"isins" msgpack:"isins"`
	MeanReturns  []float64      `json:"mean_returns" msgpack:"mean_returns"`
	Covariance   [][]float64    `json:"covariance" msgpack:"covariance"`
	Observations int            `json:"observations" msgpack:"observations"`
	Dropped      []DroppedAsset `json:"dropped,omitempty" msgpack:"dropped"`
}

// timeSeries is aligned close-price data: one slice per ISIN, indexed by
// position in Dates, NaN marking missing observations.
type timeSeries struct {
	Dates []string
	Data  map[string][]float64
}

// Builder computes Statistics from a price source.
type Builder struct {
	prices PriceSource
	cache  *Cache
	log    zerolog.Logger
}

// NewBuilder creates a statistics builder.
func NewBuilder(prices PriceSource, log zerolog.Logger) *Builder {
	return &Builder{
		prices: prices,
		log:    log.With().Str("component", "riskmodel").Logger(),
	}
}

// SetCache enables caching of computed statistics. Optional; without it
// every Build computes fresh.
func (b *Builder) SetCache(cache *Cache) {
	b.cache = cache
}

// Build computes return statistics for the given ISINs over a lookback
// window. Assets with too much missing data are dropped and reported in
// Statistics.Dropped; the returned vectors and matrix cover survivors only,
// in the input order.
func (b *Builder) Build(ctx context.Context, isins []string, lookbackDays int) (*Statistics, error) {
	if len(isins) == 0 {
		return nil, fmt.Errorf("no ISINs provided")
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	if b.cache != nil {
		if stats, ok := b.cache.Get(isins, lookbackDays); ok {
			b.log.Debug().Int("num_isins", len(isins)).Msg("Using cached return statistics")
			return stats, nil
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	series, err := b.fetchPriceHistory(isins, lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price history: %w", err)
	}
	if len(series.Dates) < MinObservations+1 {
		return nil, fmt.Errorf("insufficient price history: only %d days available", len(series.Dates))
	}

	survivors, dropped := b.applyMissingDataPolicy(series, isins)
	if len(survivors) == 0 {
		return nil, fmt.Errorf("no assets with sufficient price history (dropped %d)", len(dropped))
	}

	filled := b.fillMissing(series, survivors)
	returns := calculateReturns(filled, survivors)

	observations := len(series.Dates) - 1
	meanReturns := make([]float64, len(survivors))
	for i, isin := range survivors {
		meanReturns[i] = stat.Mean(returns[isin], nil)
	}

	covariance, err := sampleCovariance(returns, survivors)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate covariance: %w", err)
	}

	stats := &Statistics{
		ISINs:        survivors,
		MeanReturns:  meanReturns,
		Covariance:   covariance,
		Observations: observations,
		Dropped:      dropped,
	}

	b.log.Info().
		Int("num_isins", len(survivors)).
		Int("dropped", len(dropped)).
		Int("observations", observations).
		Int("lookback_days", lookbackDays).
		Msg("Built return statistics")

	if b.cache != nil {
		if err := b.cache.Set(isins, lookbackDays, stats); err != nil {
			b.log.Warn().Err(err).Msg("Failed to cache return statistics")
		}
	}

	return stats, nil
}

// fetchPriceHistory aligns every asset's prices on the union of observed
// dates, marking gaps as NaN.
func (b *Builder) fetchPriceHistory(isins []string, days int) (timeSeries, error) {
	pricesByISIN := make(map[string]map[string]float64)
	dateSet := make(map[string]bool)

	for _, isin := range isins {
		dailyPrices, err := b.prices.GetDailyPrices(isin, days)
		if err != nil {
			b.log.Warn().Err(err).Str("isin", isin).Msg("Failed to get prices for ISIN")
			continue
		}

		pricesByISIN[isin] = make(map[string]float64, len(dailyPrices))
		for _, p := range dailyPrices {
			pricesByISIN[isin][p.Date] = p.Close
			dateSet[p.Date] = true
		}
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	data := make(map[string][]float64, len(isins))
	for _, isin := range isins {
		prices := make([]float64, len(dates))
		for i, date := range dates {
			if price, ok := pricesByISIN[isin][date]; ok {
				prices[i] = price
			} else {
				prices[i] = math.NaN()
			}
		}
		data[isin] = prices
	}

	return timeSeries{Dates: dates, Data: data}, nil
}

// applyMissingDataPolicy drops assets missing more than MaxMissingFraction
// of the aligned window. Survivor order matches the input order.
func (b *Builder) applyMissingDataPolicy(series timeSeries, isins []string) ([]string, []DroppedAsset) {
	var survivors []string
	var dropped []DroppedAsset

	total := len(series.Dates)
	for _, isin := range isins {
		prices := series.Data[isin]

		missing := 0
		for _, p := range prices {
			if math.IsNaN(p) {
				missing++
			}
		}

		fraction := float64(missing) / float64(total)
		if fraction > MaxMissingFraction {
			dropped = append(dropped, DroppedAsset{
				ISIN:   isin,
				Reason: fmt.Sprintf("missing %.0f%% of price history (max %.0f%%)", fraction*100, MaxMissingFraction*100),
			})
			b.log.Warn().
				Str("isin", isin).
				Float64("missing_fraction", fraction).
				Msg("Dropping asset with excessive missing data")
			continue
		}
		survivors = append(survivors, isin)
	}

	return survivors, dropped
}

// fillMissing forward-fills then back-fills remaining gaps for survivors.
func (b *Builder) fillMissing(series timeSeries, isins []string) timeSeries {
	filledData := timeSeries{
		Dates: series.Dates,
		Data:  make(map[string][]float64, len(isins)),
	}

	for _, isin := range isins {
		prices := series.Data[isin]
		filled := make([]float64, len(prices))
		copy(filled, prices)

		var lastValid float64
		hasLastValid := false
		for i := 0; i < len(filled); i++ {
			if math.IsNaN(filled[i]) {
				if hasLastValid {
					filled[i] = lastValid
				}
			} else {
				lastValid = filled[i]
				hasLastValid = true
			}
		}

		// Leading gaps get the first valid observation.
		var nextValid float64
		hasNextValid := false
		for i := len(filled) - 1; i >= 0; i-- {
			if math.IsNaN(filled[i]) {
				if hasNextValid {
					filled[i] = nextValid
				}
			} else {
				nextValid = filled[i]
				hasNextValid = true
			}
		}

		filledData.Data[isin] = filled
	}

	return filledData
}

// calculateReturns computes daily simple returns from filled prices.
func calculateReturns(series timeSeries, isins []string) map[string][]float64 {
	returns := make(map[string][]float64, len(isins))

	for _, isin := range isins {
		prices := series.Data[isin]
		if len(prices) < 2 {
			returns[isin] = []float64{}
			continue
		}

		dailyReturns := make([]float64, len(prices)-1)
		for i := 1; i < len(prices); i++ {
			if prices[i-1] > 0 && !math.IsNaN(prices[i]) && !math.IsNaN(prices[i-1]) {
				dailyReturns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
			} else {
				dailyReturns[i-1] = 0.0
			}
		}
		returns[isin] = dailyReturns
	}

	return returns
}

// sampleCovariance calculates the sample covariance matrix from returns.
// Element (i,j) is the covariance between isins[i] and isins[j].
func sampleCovariance(returns map[string][]float64, isins []string) ([][]float64, error) {
	if len(isins) == 0 {
		return nil, fmt.Errorf("no ISINs provided")
	}

	var returnLength int
	for _, isin := range isins {
		ret, ok := returns[isin]
		if !ok {
			return nil, fmt.Errorf("missing returns for ISIN %s", isin)
		}
		if returnLength == 0 {
			returnLength = len(ret)
		}
		if len(ret) != returnLength {
			return nil, fmt.Errorf("inconsistent return lengths: expected %d, got %d for ISIN %s", returnLength, len(ret), isin)
		}
	}

	if returnLength < MinObservations {
		return nil, fmt.Errorf("insufficient data: need at least %d observations, got %d", MinObservations, returnLength)
	}

	n := len(isins)
	covMatrix := make([][]float64, n)
	for i := range covMatrix {
		covMatrix[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov := stat.Covariance(returns[isins[i]], returns[isins[j]], nil)
			covMatrix[i][j] = cov
			if i != j {
				covMatrix[j][i] = cov // Symmetry
			}
		}
	}

	return covMatrix, nil
}
