package service

import (
	"FinRange/internal/domain/models"
)

// VolatilityModel turns an annualized IV into a horizon-scaled expected move.
// Implementations are pure and safe for concurrent use.
type VolatilityModel interface {
	Name() string
	Confidence() float64
	Forecast(in models.ForecastInput) (models.VolatilityForecast, error)
}
