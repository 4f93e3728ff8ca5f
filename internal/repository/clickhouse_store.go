package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	domrepo "FinRange/internal/domain/repository"
	pkgcache "FinRange/pkg/cache"
	pkgch "FinRange/pkg/clickhouse"
	applogger "FinRange/pkg/logger"
	"FinRange/pkg/util"
)

// ClickHouse has no unique constraints. Rows are versioned and collapsed by
// ReplacingMergeTree; reads use FINAL so the latest version wins.
var chSchema = []string{
	`CREATE TABLE IF NOT EXISTS expected_move_records (
		symbol          LowCardinality(String),
		trade_date      Date,
		last_price      Float64,
		previous_close  Float64,
		annualized_iv   Float64,
		forecast_iv     Float64,
		model           LowCardinality(String),
		horizon_days    UInt16,
		days_remaining  UInt16,
		expected_move   Float64,
		expiration_move Float64,
		expected_high   Float64,
		expected_low    Float64,
		actual_close    Nullable(Float64),
		within_range    Nullable(Bool),
		created_at      DateTime64(3, 'UTC'),
		version         UInt64
	) ENGINE = ReplacingMergeTree(version)
	ORDER BY (symbol, trade_date)`,
	`CREATE TABLE IF NOT EXISTS weekly_expected_moves (
		symbol        LowCardinality(String),
		week_start    Date,
		week_open     Float64,
		annualized_iv Float64,
		days          String,
		updated_at    DateTime64(3, 'UTC'),
		version       UInt64
	) ENGINE = ReplacingMergeTree(version)
	ORDER BY symbol`,
}

const chRecordColumns = `symbol, trade_date, last_price, previous_close, annualized_iv, forecast_iv, model,
	horizon_days, days_remaining, expected_move, expiration_move, expected_high, expected_low,
	actual_close, within_range, created_at, version`

const chLockTTL = 30 * time.Second

// CHStorage implements Storage backed by ClickHouse.
type CHStorage struct {
	client *pkgch.Client
	db     *sql.DB
	locker domrepo.Locker
	owned  *pkgcache.MemoryCache
	l      *applogger.Logger
	now    func() time.Time
}

// NewCHStorage builds the store. locker serializes read-then-write paths
// across instances; nil falls back to a process-local lock.
func NewCHStorage(client *pkgch.Client, locker domrepo.Locker, l *applogger.Logger) *CHStorage {
	var owned *pkgcache.MemoryCache
	if locker == nil {
		owned = pkgcache.NewMemoryCache()
		locker = owned
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHStorage{
		client: client,
		db:     client.DB(),
		locker: locker,
		owned:  owned,
		l:      l.Component("clickhouse_store"),
		now:    time.Now,
	}
}

func (s *CHStorage) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, chSchema)
}

func (s *CHStorage) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *CHStorage) Close() error {
	if s.owned != nil {
		_ = s.owned.Close()
	}
	return s.client.Close()
}

func (s *CHStorage) Exists(ctx context.Context, symbol string, date time.Time) (bool, error) {
	const q = `SELECT count() FROM expected_move_records FINAL WHERE symbol = ? AND trade_date = ?`
	var n uint64
	if err := s.db.QueryRowContext(ctx, q, symbol, dayOf(date)).Scan(&n); err != nil {
		s.l.Error("clickhouse exists query error",
			applogger.String("symbol", symbol),
			applogger.Date("date", date),
			applogger.Error(err),
		)
		return false, fmt.Errorf("record exists: %w", err)
	}
	return n > 0, nil
}

func (s *CHStorage) CreateIfAbsent(ctx context.Context, rec *models.ExpectedMoveRecord) (bool, error) {
	start := time.Now()
	unlock, ok, err := s.lock(ctx, "record", rec.Symbol, rec.TradeDate)
	if err != nil {
		return false, err
	}
	if !ok {
		// another writer is creating the same key
		return false, nil
	}
	defer unlock()

	exists, err := s.Exists(ctx, rec.Symbol, rec.TradeDate)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if err := s.insertRecord(ctx, *rec, 1); err != nil {
		return false, err
	}
	s.l.Debug("clickhouse record created",
		applogger.String("symbol", rec.Symbol),
		applogger.Date("date", rec.TradeDate),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return true, nil
}

func (s *CHStorage) Get(ctx context.Context, symbol string, date time.Time) (models.ExpectedMoveRecord, error) {
	rec, _, err := s.getVersioned(ctx, symbol, date)
	return rec, err
}

func (s *CHStorage) List(ctx context.Context, symbol string, from, to time.Time) ([]models.ExpectedMoveRecord, error) {
	q := `SELECT ` + chRecordColumns + `
		FROM expected_move_records FINAL
		WHERE symbol = ? AND trade_date >= ? AND trade_date <= ?
		ORDER BY trade_date ASC`
	rows, err := s.db.QueryContext(ctx, q, symbol, dayOf(from), dayOf(to))
	if err != nil {
		s.l.Error("clickhouse list_records query error",
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]models.ExpectedMoveRecord, 0, 64)
	for rows.Next() {
		rec, _, err := scanCHRecord(rows)
		if err != nil {
			s.l.Error("clickhouse list_records scan error",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHStorage) AttachActualClose(ctx context.Context, symbol string, date time.Time, close float64) (models.ExpectedMoveRecord, error) {
	unlock, ok, err := s.lock(ctx, "settle", symbol, date)
	if err != nil {
		return models.ExpectedMoveRecord{}, err
	}
	if !ok {
		return models.ExpectedMoveRecord{}, fmt.Errorf("settle %s %s in progress: %w", symbol, util.FormatDate(date), errs.ErrBusy)
	}
	defer unlock()

	rec, version, err := s.getVersioned(ctx, symbol, date)
	if err != nil {
		return models.ExpectedMoveRecord{}, err
	}
	if err := rec.Settle(close); err != nil {
		return models.ExpectedMoveRecord{}, err
	}
	if err := s.insertRecord(ctx, rec, version+1); err != nil {
		return models.ExpectedMoveRecord{}, err
	}
	return rec, nil
}

func (s *CHStorage) GetWeekly(ctx context.Context, symbol string) (models.WeeklyExpectedMoves, error) {
	w, _, err := s.getWeeklyVersioned(ctx, symbol)
	return w, err
}

func (s *CHStorage) ReplaceWeekly(ctx context.Context, w models.WeeklyExpectedMoves) error {
	unlock, ok, err := s.lock(ctx, "weekly", w.Symbol, w.WeekStart)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("weekly %s: %w", w.Symbol, errs.ErrBusy)
	}
	defer unlock()

	_, version, err := s.getWeeklyVersioned(ctx, w.Symbol)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return s.insertWeekly(ctx, w, version+1)
}

func (s *CHStorage) SetWeeklyClose(ctx context.Context, symbol string, date time.Time, close float64) (models.WeeklyExpectedMoves, error) {
	unlock, ok, err := s.lock(ctx, "weekly", symbol, time.Time{})
	if err != nil {
		return models.WeeklyExpectedMoves{}, err
	}
	if !ok {
		return models.WeeklyExpectedMoves{}, fmt.Errorf("weekly %s: %w", symbol, errs.ErrBusy)
	}
	defer unlock()

	w, version, err := s.getWeeklyVersioned(ctx, symbol)
	if err != nil {
		return models.WeeklyExpectedMoves{}, err
	}
	if err := w.SetClose(dayOf(date), close); err != nil {
		return models.WeeklyExpectedMoves{}, err
	}
	w.UpdatedAt = s.now().UTC()
	if err := s.insertWeekly(ctx, w, version+1); err != nil {
		return models.WeeklyExpectedMoves{}, err
	}
	return w, nil
}

func (s *CHStorage) getVersioned(ctx context.Context, symbol string, date time.Time) (models.ExpectedMoveRecord, uint64, error) {
	q := `SELECT ` + chRecordColumns + `
		FROM expected_move_records FINAL
		WHERE symbol = ? AND trade_date = ?`
	rec, version, err := scanCHRecord(s.db.QueryRowContext(ctx, q, symbol, dayOf(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ExpectedMoveRecord{}, 0, fmt.Errorf("record %s %s: %w", symbol, util.FormatDate(date), errs.ErrNotFound)
	}
	if err != nil {
		s.l.Error("clickhouse get_record error",
			applogger.String("symbol", symbol),
			applogger.Date("date", date),
			applogger.Error(err),
		)
		return models.ExpectedMoveRecord{}, 0, fmt.Errorf("get record: %w", err)
	}
	return rec, version, nil
}

func (s *CHStorage) insertRecord(ctx context.Context, r models.ExpectedMoveRecord, version uint64) error {
	q := `INSERT INTO expected_move_records (` + chRecordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var actual sql.NullFloat64
	if r.ActualClose != nil {
		actual = sql.NullFloat64{Float64: *r.ActualClose, Valid: true}
	}
	var within sql.NullBool
	if r.WithinRange != nil {
		within = sql.NullBool{Bool: *r.WithinRange, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, q,
		r.Symbol, dayOf(r.TradeDate), r.LastPrice, r.PreviousClose, r.AnnualizedIV, r.ForecastIV, r.Model,
		uint16(r.HorizonDays), uint16(r.DaysRemaining), r.ExpectedMove, r.ExpirationMove, r.ExpectedHigh, r.ExpectedLow,
		actual, within, r.CreatedAt.UTC(), version,
	)
	if err != nil {
		s.l.Error("clickhouse insert_record error",
			applogger.String("symbol", r.Symbol),
			applogger.Date("date", r.TradeDate),
			applogger.Error(err),
		)
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *CHStorage) getWeeklyVersioned(ctx context.Context, symbol string) (models.WeeklyExpectedMoves, uint64, error) {
	const q = `SELECT symbol, week_start, week_open, annualized_iv, days, updated_at, version
		FROM weekly_expected_moves FINAL
		WHERE symbol = ?`
	var (
		w       models.WeeklyExpectedMoves
		days    string
		version uint64
	)
	err := s.db.QueryRowContext(ctx, q, symbol).Scan(&w.Symbol, &w.WeekStart, &w.WeekOpen, &w.AnnualizedIV, &days, &w.UpdatedAt, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WeeklyExpectedMoves{}, 0, fmt.Errorf("weekly %s: %w", symbol, errs.ErrNotFound)
	}
	if err != nil {
		s.l.Error("clickhouse get_weekly error", applogger.String("symbol", symbol), applogger.Error(err))
		return models.WeeklyExpectedMoves{}, 0, fmt.Errorf("get weekly: %w", err)
	}
	if err := json.Unmarshal([]byte(days), &w.Days); err != nil {
		return models.WeeklyExpectedMoves{}, 0, fmt.Errorf("decode weekly days: %w", err)
	}
	w.WeekStart = dayOf(w.WeekStart)
	return w, version, nil
}

func (s *CHStorage) insertWeekly(ctx context.Context, w models.WeeklyExpectedMoves, version uint64) error {
	days, err := json.Marshal(w.Days)
	if err != nil {
		return fmt.Errorf("encode weekly days: %w", err)
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = s.now().UTC()
	}
	const q = `INSERT INTO weekly_expected_moves (symbol, week_start, week_open, annualized_iv, days, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, w.Symbol, dayOf(w.WeekStart), w.WeekOpen, w.AnnualizedIV, string(days), w.UpdatedAt.UTC(), version); err != nil {
		s.l.Error("clickhouse insert_weekly error", applogger.String("symbol", w.Symbol), applogger.Error(err))
		return fmt.Errorf("insert weekly: %w", err)
	}
	return nil
}

// lock takes a short TTL lock on kind:symbol[:date]. The returned func
// releases it.
func (s *CHStorage) lock(ctx context.Context, kind, symbol string, date time.Time) (func(), bool, error) {
	key := pkgcache.GenerateKeyWithParams("store", kind, symbol)
	if !date.IsZero() && kind != "weekly" {
		key = pkgcache.GenerateKeyWithParams(key, util.FormatDate(date))
	}
	ok, err := s.locker.TryLock(ctx, key, chLockTTL)
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			s.l.Warn("clickhouse store unlock failed", applogger.String("key", key), applogger.Error(err))
		}
	}, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCHRecord(row rowScanner) (models.ExpectedMoveRecord, uint64, error) {
	var (
		r       models.ExpectedMoveRecord
		horizon uint16
		days    uint16
		actual  sql.NullFloat64
		within  sql.NullBool
		version uint64
	)
	err := row.Scan(&r.Symbol, &r.TradeDate, &r.LastPrice, &r.PreviousClose, &r.AnnualizedIV, &r.ForecastIV, &r.Model,
		&horizon, &days, &r.ExpectedMove, &r.ExpirationMove, &r.ExpectedHigh, &r.ExpectedLow,
		&actual, &within, &r.CreatedAt, &version)
	if err != nil {
		return models.ExpectedMoveRecord{}, 0, err
	}
	r.TradeDate = dayOf(r.TradeDate)
	r.HorizonDays = int(horizon)
	r.DaysRemaining = int(days)
	if actual.Valid {
		v := actual.Float64
		r.ActualClose = &v
	}
	if within.Valid {
		v := within.Bool
		r.WithinRange = &v
	}
	return r, version, nil
}

// dayOf normalizes a date key to midnight UTC.
func dayOf(t time.Time) time.Time {
	return util.Date(t.Date())
}

var _ domrepo.Storage = (*CHStorage)(nil)
