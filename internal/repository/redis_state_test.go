package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/require"

	"FinRange/internal/domain/models"
	pkgcache "FinRange/pkg/cache"
	"FinRange/pkg/util"
)

func TestCacheStateMissingIsZero(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewCacheState(pkgcache.NewRedisCacheFromClient(db, "finrange"))

	mock.ExpectGet("finrange:scheduler:state").RedisNil()
	st, err := s.Load(context.Background())
	require.NoError(t, err)
	require.True(t, st.LastDailyRun.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStateRoundTripOnRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewCacheState(pkgcache.NewRedisCacheFromClient(db, "finrange"))
	ctx := context.Background()

	st := models.SchedulerState{LastDailyRun: util.Date(2025, 10, 17), LastWeeklyRun: util.Date(2025, 10, 11)}
	payload, err := json.Marshal(st)
	require.NoError(t, err)

	mock.ExpectSet("finrange:scheduler:state", payload, 0).SetVal("OK")
	require.NoError(t, s.Save(ctx, st))

	mock.ExpectGet("finrange:scheduler:state").SetVal(string(payload))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.LastDailyRun.Equal(st.LastDailyRun))
	require.True(t, got.LastWeeklyRun.Equal(st.LastWeeklyRun))

	mock.ExpectSetNX("finrange:scheduler:daily:2025-10-17", "locked", 10*time.Minute).SetVal(false)
	ok, err := s.TryLock(ctx, "scheduler:daily:2025-10-17", 10*time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStateOnMemoryCache(t *testing.T) {
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	s := NewCacheState(mc)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, models.SchedulerState{LastDailyRun: util.Date(2025, 10, 17)}))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.LastDailyRun.Equal(util.Date(2025, 10, 17)))

	ok, err := s.TryLock(ctx, "scheduler:weekly:2025-10-18", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.TryLock(ctx, "scheduler:weekly:2025-10-18", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.Unlock(ctx, "scheduler:weekly:2025-10-18"))
}
