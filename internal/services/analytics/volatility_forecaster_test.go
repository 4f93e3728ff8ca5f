package analytics_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	"FinRange/internal/services/analytics"
)

func TestStandardExpectedMoveOneDay(t *testing.T) {
	f, err := analytics.NewStandard().Forecast(models.ForecastInput{Price: 6595.25, AnnualizedIV: 0.0245, HorizonDays: 1})
	require.NoError(t, err)
	require.InDelta(t, 10.1789, f.ExpectedMove, 1e-3)
	require.Equal(t, 0.0245, f.ForecastIV)
	require.Equal(t, 0.68, f.Confidence)
	require.Equal(t, "standard", f.Model)
}

func TestExpectedMoveScalesWithSqrtHorizon(t *testing.T) {
	one := analytics.ExpectedMove(5000, 0.2, 1)
	four := analytics.ExpectedMove(5000, 0.2, 4)
	require.InDelta(t, 2*one, four, 1e-9)
}

func TestModelsAgreeWithoutInnovation(t *testing.T) {
	in := models.ForecastInput{Price: 24726.5, AnnualizedIV: 0.21, HorizonDays: 3}
	reg := analytics.NewRegistry()
	std, err := reg.Forecast("standard", in)
	require.NoError(t, err)
	for _, name := range []string{"garch", "ewma"} {
		f, err := reg.Forecast(name, in)
		require.NoError(t, err)
		require.InDelta(t, std.ForecastIV, f.ForecastIV, 1e-6, name)
		require.InDelta(t, std.ExpectedMove, f.ExpectedMove, 1e-6*in.Price, name)
	}
}

func TestGARCHUpdate(t *testing.T) {
	in := models.ForecastInput{Price: 100, AnnualizedIV: 0.2, HorizonDays: 1, RecentReturn: 0.01, PriorForecast: 0.2}
	f, err := analytics.NewGARCH().Forecast(in)
	require.NoError(t, err)
	want := math.Sqrt(1e-6 + 0.1*0.01*0.01*252 + 0.85*0.04)
	require.InDelta(t, want, f.ForecastIV, 1e-12)
	require.Equal(t, 0.75, f.Confidence)
	require.Equal(t, 0.85, f.Params["beta"])
}

func TestGARCHCarriesPriorOnZeroReturn(t *testing.T) {
	f, err := analytics.NewGARCH().Forecast(models.ForecastInput{Price: 100, AnnualizedIV: 0.2, HorizonDays: 1, PriorForecast: 0.3})
	require.NoError(t, err)
	require.InDelta(t, 0.3, f.ForecastIV, 1e-12)
}

func TestEWMAUpdate(t *testing.T) {
	in := models.ForecastInput{Price: 100, AnnualizedIV: 0.2, HorizonDays: 2, RecentReturn: -0.01}
	f, err := analytics.NewEWMA().Forecast(in)
	require.NoError(t, err)
	want := math.Sqrt(0.94*0.04 + 0.06*0.0252)
	require.InDelta(t, want, f.ForecastIV, 1e-12)
	require.InDelta(t, analytics.ExpectedMove(100, want, 2), f.ExpectedMove, 1e-12)
	require.Equal(t, 0.70, f.Confidence)
}

func TestForecastRejectsBadInput(t *testing.T) {
	cases := map[string]models.ForecastInput{
		"zero horizon":   {Price: 100, AnnualizedIV: 0.2, HorizonDays: 0},
		"negative iv":    {Price: 100, AnnualizedIV: -0.1, HorizonDays: 1},
		"nan price":      {Price: math.NaN(), AnnualizedIV: 0.2, HorizonDays: 1},
		"negative prior": {Price: 100, AnnualizedIV: 0.2, HorizonDays: 1, PriorForecast: -1},
	}
	for name, in := range cases {
		for _, m := range []string{"standard", "garch", "ewma"} {
			_, err := analytics.NewRegistry().Forecast(m, in)
			require.ErrorIs(t, err, errs.ErrInvalidArgument, "%s/%s", name, m)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := analytics.NewRegistry()
	m, err := reg.Get(" GARCH ")
	require.NoError(t, err)
	require.Equal(t, "garch", m.Name())
	_, err = reg.Get("heston")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	require.Equal(t, []string{"ewma", "garch", "standard"}, reg.Names())
}

func TestClampHorizon(t *testing.T) {
	require.Equal(t, 1, analytics.ClampHorizon(0))
	require.Equal(t, 1, analytics.ClampHorizon(-3))
	require.Equal(t, 7, analytics.ClampHorizon(7))
}
