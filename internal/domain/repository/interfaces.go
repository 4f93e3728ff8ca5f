package repository

import (
	"context"
	"time"

	"FinRange/internal/domain/models"
)

// ContractStore holds the configured contracts and their nightly state.
type ContractStore interface {
	List(ctx context.Context) ([]models.Contract, error)
	Get(ctx context.Context, symbol string) (models.Contract, error)
	Save(ctx context.Context, c models.Contract) error
}

// RecordStore persists append-only historical records.
type RecordStore interface {
	Exists(ctx context.Context, symbol string, date time.Time) (bool, error)
	// CreateIfAbsent inserts rec unless (symbol, date) exists. The check and the
	// insert are one logical transaction.
	CreateIfAbsent(ctx context.Context, rec *models.ExpectedMoveRecord) (bool, error)
	Get(ctx context.Context, symbol string, date time.Time) (models.ExpectedMoveRecord, error)
	List(ctx context.Context, symbol string, from, to time.Time) ([]models.ExpectedMoveRecord, error)
	// AttachActualClose settles a record exactly once.
	AttachActualClose(ctx context.Context, symbol string, date time.Time, close float64) (models.ExpectedMoveRecord, error)
}

// WeeklyStore persists one forward-looking weekly row per symbol.
type WeeklyStore interface {
	GetWeekly(ctx context.Context, symbol string) (models.WeeklyExpectedMoves, error)
	ReplaceWeekly(ctx context.Context, w models.WeeklyExpectedMoves) error
	SetWeeklyClose(ctx context.Context, symbol string, date time.Time, close float64) (models.WeeklyExpectedMoves, error)
}

// Storage is a persistence backend for both record kinds.
type Storage interface {
	RecordStore
	WeeklyStore
	Init(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// StateStore persists the scheduler's last-run markers.
type StateStore interface {
	Load(ctx context.Context) (models.SchedulerState, error)
	Save(ctx context.Context, st models.SchedulerState) error
}

// Locker provides TTL locks shared across scheduler instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// QuoteProvider fetches the latest quote per symbol.
type QuoteProvider interface {
	FetchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error)
}

// Publisher emits expected-move events downstream.
type Publisher interface {
	PublishRecord(ctx context.Context, r models.ExpectedMoveRecord) error
	PublishWeekly(ctx context.Context, w models.WeeklyExpectedMoves) error
	Close() error
}

type Metrics interface {
	RecordJobRun(job, result string)
	RecordJobDuration(job string, seconds float64)
	RecordCreated(symbol string)
	RecordDuplicate(symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordExpectedMove(symbol string, move float64)
	RecordDaysRemaining(symbol string, days int)
}
