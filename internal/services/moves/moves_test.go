package moves

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	"FinRange/internal/services/analytics"
	"FinRange/pkg/util"
)

func TestRoundToTickExamples(t *testing.T) {
	cases := []struct {
		x, tick, want float64
	}{
		{24726.678, 0.25, 24726.75},
		{2234.234, 0.1, 2234.2},
		{58.9087, 0.01, 58.91},
		{45706.3, 1, 45706},
		{6585.0711, 0.25, 6585.00},
		{0.30000000000000004, 0.1, 0.3},
	}
	for _, c := range cases {
		got, err := RoundToTick(c.x, c.tick)
		require.NoError(t, err)
		require.Equal(t, c.want, got, "%v/%v", c.x, c.tick)
	}
}

func TestRoundToTickStaysWithinHalfTick(t *testing.T) {
	for _, tick := range []float64{0.25, 0.1, 0.01, 0.005, 1, 5} {
		for p := 0.0; p < 500; p += 0.37 {
			got, err := RoundToTick(p, tick)
			require.NoError(t, err)
			require.LessOrEqual(t, math.Abs(got-p), tick/2+1e-9)
			steps := got / tick
			require.InDelta(t, math.Round(steps), steps, 1e-6)
		}
	}
}

func TestRoundToTickRejectsBadTick(t *testing.T) {
	for _, tick := range []float64{0, -0.25, math.NaN()} {
		_, err := RoundToTick(100, tick)
		require.ErrorIs(t, err, errs.ErrInvalidArgument)
	}
	_, err := RoundToTick(math.Inf(1), 0.25)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestExpectedRangeEndToEnd(t *testing.T) {
	f, err := analytics.NewStandard().Forecast(models.ForecastInput{Price: 6595.25, AnnualizedIV: 0.0245, HorizonDays: 1})
	require.NoError(t, err)
	r, err := ExpectedRange(6595.25, f, 0.25)
	require.NoError(t, err)
	require.Equal(t, models.PriceRange{Low: 6585.00, High: 6605.50}, r)
	require.True(t, r.Contains(6595.25))
}

func TestWeeklyBandsWiden(t *testing.T) {
	monday := util.Date(2025, 10, 20)
	bands, err := WeeklyBands(monday, 6595.25, 0.18, 0.25)
	require.NoError(t, err)
	require.Len(t, bands, WeekDays)
	prev := 0.0
	for i, b := range bands {
		width := b.ExpectedHigh - b.ExpectedLow
		require.Greater(t, width, prev, "day %d", i+1)
		prev = width
		require.Equal(t, monday.AddDate(0, 0, i), b.Date)
		require.Nil(t, b.ActualClose)
	}
	require.Equal(t, "Friday", bands[4].Weekday.String())

	move := analytics.ExpectedMove(6595.25, 0.18, 5)
	fri, err := RangeAround(6595.25, move, 0.25)
	require.NoError(t, err)
	require.Equal(t, fri.High, bands[4].ExpectedHigh)
	require.Equal(t, fri.Low, bands[4].ExpectedLow)
}

func TestWeeklyBandsRejectsNonMonday(t *testing.T) {
	_, err := WeeklyBands(util.Date(2025, 10, 21), 100, 0.2, 0.01)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = WeeklyBands(util.Date(2025, 10, 20), 100, 0.2, 0)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestNextMonday(t *testing.T) {
	require.Equal(t, util.Date(2025, 10, 20), NextMonday(util.Date(2025, 10, 18)))
	require.Equal(t, util.Date(2025, 10, 27), NextMonday(util.Date(2025, 10, 20)))
	require.Equal(t, util.Date(2025, 10, 20), NextMonday(util.Date(2025, 10, 19)))
}
