package analytics

import (
	"math"

	"FinRange/internal/domain/models"
	domsvc "FinRange/internal/domain/service"
)

// Standard scales the IV by sqrt(h/252) with no memory.
type Standard struct{}

func NewStandard() *Standard { return &Standard{} }

func (*Standard) Name() string        { return ModelStandard }
func (*Standard) Confidence() float64 { return 0.68 }

func (s *Standard) Forecast(in models.ForecastInput) (models.VolatilityForecast, error) {
	if err := validate(in); err != nil {
		return models.VolatilityForecast{}, err
	}
	return result(s.Name(), s.Confidence(), in, in.AnnualizedIV, nil), nil
}

// GARCH is a GARCH(1,1) variance update σ² = ω + α·ε² + β·σ²(t-1).
// A zero shock carries the prior variance forward, floored at ω.
// The shock ε² is the recent decimal return annualized as r²·252.
type GARCH struct {
	Omega float64
	Alpha float64
	Beta  float64
}

func NewGARCH() *GARCH { return &GARCH{Omega: 1e-6, Alpha: 0.1, Beta: 0.85} }

func (*GARCH) Name() string        { return ModelGARCH }
func (*GARCH) Confidence() float64 { return 0.75 }

func (g *GARCH) Forecast(in models.ForecastInput) (models.VolatilityForecast, error) {
	if err := validate(in); err != nil {
		return models.VolatilityForecast{}, err
	}
	prev := priorVariance(in)
	variance := math.Max(prev, g.Omega)
	if in.RecentReturn != 0 {
		variance = g.Omega + g.Alpha*annualizedShock(in.RecentReturn) + g.Beta*prev
	}
	params := map[string]float64{"omega": g.Omega, "alpha": g.Alpha, "beta": g.Beta}
	return result(g.Name(), g.Confidence(), in, math.Sqrt(variance), params), nil
}

// EWMA is the RiskMetrics exponentially weighted variance σ² = λ·σ²(t-1) + (1-λ)·r².
// r² is the recent decimal return annualized as r²·252.
type EWMA struct {
	Lambda float64
}

func NewEWMA() *EWMA { return &EWMA{Lambda: 0.94} }

func (*EWMA) Name() string        { return ModelEWMA }
func (*EWMA) Confidence() float64 { return 0.70 }

func (e *EWMA) Forecast(in models.ForecastInput) (models.VolatilityForecast, error) {
	if err := validate(in); err != nil {
		return models.VolatilityForecast{}, err
	}
	variance := priorVariance(in)
	if in.RecentReturn != 0 {
		variance = e.Lambda*variance + (1-e.Lambda)*annualizedShock(in.RecentReturn)
	}
	return result(e.Name(), e.Confidence(), in, math.Sqrt(variance), map[string]float64{"lambda": e.Lambda}), nil
}

var (
	_ domsvc.VolatilityModel = (*Standard)(nil)
	_ domsvc.VolatilityModel = (*GARCH)(nil)
	_ domsvc.VolatilityModel = (*EWMA)(nil)
)
