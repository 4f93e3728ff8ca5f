package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	domsvc "FinRange/internal/domain/service"
)

// TradingDaysPerYear is the annualization base for every move computed here.
const TradingDaysPerYear = 252.0

// Model names accepted by the registry.
const (
	ModelStandard = "standard"
	ModelGARCH    = "garch"
	ModelEWMA     = "ewma"
)

// Registry selects volatility models by name.
type Registry struct {
	models map[string]domsvc.VolatilityModel
}

// NewRegistry returns a registry holding the standard, GARCH(1,1) and EWMA models.
func NewRegistry(extra ...domsvc.VolatilityModel) *Registry {
	r := &Registry{models: make(map[string]domsvc.VolatilityModel)}
	for _, m := range append([]domsvc.VolatilityModel{NewStandard(), NewGARCH(), NewEWMA()}, extra...) {
		r.models[strings.ToLower(m.Name())] = m
	}
	return r
}

// Get returns the model registered under name (case-insensitive).
func (r *Registry) Get(name string) (domsvc.VolatilityModel, error) {
	m, ok := r.models[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown volatility model %q (have %s): %w", name, strings.Join(r.Names(), ", "), errs.ErrInvalidArgument)
	}
	return m, nil
}

// Names lists registered model names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.models))
	for n := range r.models {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Forecast runs the named model.
func (r *Registry) Forecast(name string, in models.ForecastInput) (models.VolatilityForecast, error) {
	m, err := r.Get(name)
	if err != nil {
		return models.VolatilityForecast{}, err
	}
	return m.Forecast(in)
}

// ClampHorizon converts a days-remaining count into a usable horizon (>= 1).
func ClampHorizon(days int) int {
	if days < 1 {
		return 1
	}
	return days
}

// ExpectedMove is the one-sigma dollar move over horizonDays: price × iv × sqrt(h/252).
func ExpectedMove(price, annualizedIV float64, horizonDays int) float64 {
	return price * annualizedIV * math.Sqrt(float64(horizonDays)/TradingDaysPerYear)
}

func validate(in models.ForecastInput) error {
	switch {
	case in.HorizonDays < 1:
		return fmt.Errorf("horizon %d days < 1: %w", in.HorizonDays, errs.ErrInvalidArgument)
	case !(in.AnnualizedIV >= 0) || math.IsInf(in.AnnualizedIV, 0):
		return fmt.Errorf("annualized iv %v: %w", in.AnnualizedIV, errs.ErrInvalidArgument)
	case !(in.Price >= 0) || math.IsInf(in.Price, 0):
		return fmt.Errorf("price %v: %w", in.Price, errs.ErrInvalidArgument)
	case in.PriorForecast < 0 || math.IsNaN(in.PriorForecast) || math.IsInf(in.PriorForecast, 0):
		return fmt.Errorf("prior forecast %v: %w", in.PriorForecast, errs.ErrInvalidArgument)
	case math.IsNaN(in.RecentReturn) || math.IsInf(in.RecentReturn, 0):
		return fmt.Errorf("recent return %v: %w", in.RecentReturn, errs.ErrInvalidArgument)
	}
	return nil
}

// priorVariance seeds σ²(t-1) from the prior forecast, or from the IV when there is none.
func priorVariance(in models.ForecastInput) float64 {
	if in.PriorForecast > 0 {
		return in.PriorForecast * in.PriorForecast
	}
	return in.AnnualizedIV * in.AnnualizedIV
}

// annualizedShock is r² on the annual variance scale.
func annualizedShock(r float64) float64 {
	return r * r * TradingDaysPerYear
}

func result(name string, confidence float64, in models.ForecastInput, forecastIV float64, params map[string]float64) models.VolatilityForecast {
	return models.VolatilityForecast{
		Model:        name,
		AnnualizedIV: in.AnnualizedIV,
		ForecastIV:   forecastIV,
		HorizonDays:  in.HorizonDays,
		Price:        in.Price,
		ExpectedMove: ExpectedMove(in.Price, forecastIV, in.HorizonDays),
		Confidence:   confidence,
		Params:       params,
	}
}
