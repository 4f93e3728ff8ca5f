package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	"FinRange/pkg/util"
)

func TestMemoryCreateIfAbsentIsIdempotent(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	var wg sync.WaitGroup
	created := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CreateIfAbsent(ctx, sampleRecord())
			assert.NoError(t, err)
			created <- ok
		}()
	}
	wg.Wait()
	close(created)

	n := 0
	for ok := range created {
		if ok {
			n++
		}
	}
	require.Equal(t, 1, n)

	list, err := s.List(ctx, "ES", util.Date(2025, 10, 1), util.Date(2025, 10, 31))
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestMemorySettleOnce(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	_, err := s.CreateIfAbsent(ctx, sampleRecord())
	require.NoError(t, err)

	rec, err := s.AttachActualClose(ctx, "ES", util.Date(2025, 10, 17), 6700)
	require.NoError(t, err)
	require.False(t, *rec.WithinRange)

	_, err = s.AttachActualClose(ctx, "ES", util.Date(2025, 10, 17), 6600)
	require.ErrorIs(t, err, errs.ErrAlreadySettled)

	_, err = s.AttachActualClose(ctx, "ES", util.Date(2025, 10, 16), 6600)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMemoryListIsOrderedAndBounded(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	for _, d := range []int{17, 15, 16, 20} {
		r := sampleRecord()
		r.TradeDate = util.Date(2025, 10, d)
		_, err := s.CreateIfAbsent(ctx, r)
		require.NoError(t, err)
	}
	list, err := s.List(ctx, "ES", util.Date(2025, 10, 15), util.Date(2025, 10, 17))
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, util.Date(2025, 10, 15), list[0].TradeDate)
	require.Equal(t, util.Date(2025, 10, 17), list[2].TradeDate)
}

func TestMemoryWeeklyReturnsCopies(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	w := models.WeeklyExpectedMoves{
		Symbol:    "ES",
		WeekStart: util.Date(2025, 10, 20),
		Days:      []models.DayBand{{Date: util.Date(2025, 10, 20)}, {Date: util.Date(2025, 10, 21)}},
	}
	require.NoError(t, s.ReplaceWeekly(ctx, w))

	got, err := s.SetWeeklyClose(ctx, "ES", util.Date(2025, 10, 21), 6600)
	require.NoError(t, err)
	require.Nil(t, got.Days[0].ActualClose)
	require.Equal(t, 6600.0, *got.Days[1].ActualClose)

	*got.Days[1].ActualClose = 1
	again, err := s.GetWeekly(ctx, "ES")
	require.NoError(t, err)
	require.Equal(t, 6600.0, *again.Days[1].ActualClose)

	_, err = s.SetWeeklyClose(ctx, "ES", util.Date(2025, 10, 27), 6600)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMemoryContracts(t *testing.T) {
	cs := NewMemoryContracts([]models.Contract{{Symbol: "ES"}, {Symbol: "GC"}})
	ctx := context.Background()

	list, err := cs.List(ctx)
	require.NoError(t, err)
	require.Equal(t, "ES", list[0].Symbol)

	require.NoError(t, cs.Save(ctx, models.Contract{Symbol: "GC", Price: 2400}))
	gc, err := cs.Get(ctx, "GC")
	require.NoError(t, err)
	require.Equal(t, 2400.0, gc.Price)

	require.ErrorIs(t, cs.Save(ctx, models.Contract{Symbol: "ZZ"}), errs.ErrNotFound)
}
