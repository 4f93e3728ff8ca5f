package models

import "time"

// ForecastInput carries everything a volatility model needs.
type ForecastInput struct {
	Price        float64
	AnnualizedIV float64
	HorizonDays  int
	// RecentReturn is the latest realized session return as a decimal; zero means no innovation.
	RecentReturn float64
	// PriorForecast is the previous annualized forecast; zero seeds from AnnualizedIV.
	PriorForecast float64
}

// VolatilityForecast is the output of a volatility model.
type VolatilityForecast struct {
	Model        string             `json:"model"`
	AnnualizedIV float64            `json:"annualized_iv"`
	ForecastIV   float64            `json:"forecast_iv"`
	HorizonDays  int                `json:"horizon_days"`
	Price        float64            `json:"price"`
	ExpectedMove float64            `json:"expected_move"` // dollar move over HorizonDays
	Confidence   float64            `json:"confidence"`
	Params       map[string]float64 `json:"params,omitempty"`
}

// PriceRange is a tick-rounded expected band.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Width returns High - Low.
func (r PriceRange) Width() float64 { return r.High - r.Low }

// Contains reports whether price falls inside the band, bounds included.
func (r PriceRange) Contains(price float64) bool {
	return price >= r.Low && price <= r.High
}

// DayBand is one weekday of a weekly expected-move table.
type DayBand struct {
	Date         time.Time    `json:"date"`
	Weekday      time.Weekday `json:"weekday"`
	ExpectedHigh float64      `json:"expected_high"`
	ExpectedLow  float64      `json:"expected_low"`
	ActualClose  *float64     `json:"actual_close"`
}
