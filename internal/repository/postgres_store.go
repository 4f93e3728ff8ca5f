package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	domrepo "FinRange/internal/domain/repository"
	applogger "FinRange/pkg/logger"
	"FinRange/pkg/util"
)

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS expected_move_records (
		symbol          TEXT NOT NULL,
		trade_date      DATE NOT NULL,
		last_price      DOUBLE PRECISION NOT NULL,
		previous_close  DOUBLE PRECISION NOT NULL,
		annualized_iv   DOUBLE PRECISION NOT NULL,
		forecast_iv     DOUBLE PRECISION NOT NULL,
		model           TEXT NOT NULL,
		horizon_days    INTEGER NOT NULL,
		days_remaining  INTEGER NOT NULL,
		expected_move   DOUBLE PRECISION NOT NULL,
		expiration_move DOUBLE PRECISION NOT NULL,
		expected_high   DOUBLE PRECISION NOT NULL,
		expected_low    DOUBLE PRECISION NOT NULL,
		actual_close    DOUBLE PRECISION,
		within_range    BOOLEAN,
		created_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (symbol, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS weekly_expected_moves (
		symbol        TEXT PRIMARY KEY,
		week_start    DATE NOT NULL,
		week_open     DOUBLE PRECISION NOT NULL,
		annualized_iv DOUBLE PRECISION NOT NULL,
		days          JSONB NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
}

const pgRecordColumns = `symbol, trade_date, last_price, previous_close, annualized_iv, forecast_iv, model,
	horizon_days, days_remaining, expected_move, expiration_move, expected_high, expected_low,
	actual_close, within_range, created_at`

// PgxQuerier is the subset of *pgxpool.Pool the store needs.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStorage implements Storage on PostgreSQL. Uniqueness comes from the
// primary key, so concurrent creators never need an external lock.
type PGStorage struct {
	db   PgxQuerier
	pool *pgxpool.Pool
	l    *applogger.Logger
	now  func() time.Time
}

// ConnectPostgres opens and pings a pool.
func ConnectPostgres(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func NewPGStorage(pool *pgxpool.Pool, l *applogger.Logger) *PGStorage {
	s := NewPGStorageWithQuerier(pool, l)
	s.pool = pool
	return s
}

// NewPGStorageWithQuerier builds a store on any pgx querier.
func NewPGStorageWithQuerier(db PgxQuerier, l *applogger.Logger) *PGStorage {
	if l == nil {
		l = applogger.Nop()
	}
	return &PGStorage{db: db, l: l.Component("postgres_store"), now: time.Now}
}

func (s *PGStorage) Init(ctx context.Context) error {
	for _, stmt := range pgSchema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *PGStorage) Health(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

func (s *PGStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PGStorage) Exists(ctx context.Context, symbol string, date time.Time) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM expected_move_records WHERE symbol = $1 AND trade_date = $2)`,
		symbol, dayOf(date)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("record exists: %w", err)
	}
	return ok, nil
}

func (s *PGStorage) CreateIfAbsent(ctx context.Context, rec *models.ExpectedMoveRecord) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	r := rec
	ct, err := s.db.Exec(ctx, `
		INSERT INTO expected_move_records (`+pgRecordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (symbol, trade_date) DO NOTHING`,
		r.Symbol, dayOf(r.TradeDate), r.LastPrice, r.PreviousClose, r.AnnualizedIV, r.ForecastIV, r.Model,
		r.HorizonDays, r.DaysRemaining, r.ExpectedMove, r.ExpirationMove, r.ExpectedHigh, r.ExpectedLow,
		r.ActualClose, r.WithinRange, r.CreatedAt,
	)
	if err != nil {
		s.l.Error("postgres insert_record error",
			applogger.String("symbol", r.Symbol),
			applogger.Date("date", r.TradeDate),
			applogger.Error(err),
		)
		return false, fmt.Errorf("insert record: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PGStorage) Get(ctx context.Context, symbol string, date time.Time) (models.ExpectedMoveRecord, error) {
	rec, err := scanPGRecord(s.db.QueryRow(ctx,
		`SELECT `+pgRecordColumns+` FROM expected_move_records WHERE symbol = $1 AND trade_date = $2`,
		symbol, dayOf(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ExpectedMoveRecord{}, fmt.Errorf("record %s %s: %w", symbol, util.FormatDate(date), errs.ErrNotFound)
	}
	if err != nil {
		return models.ExpectedMoveRecord{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *PGStorage) List(ctx context.Context, symbol string, from, to time.Time) ([]models.ExpectedMoveRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+pgRecordColumns+`
		FROM expected_move_records
		WHERE symbol = $1 AND trade_date >= $2 AND trade_date <= $3
		ORDER BY trade_date ASC`,
		symbol, dayOf(from), dayOf(to))
	if err != nil {
		s.l.Error("postgres list_records query error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]models.ExpectedMoveRecord, 0, 64)
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// AttachActualClose settles in one statement; the IS NULL guard makes a
// second settlement a no-op that is reported as ErrAlreadySettled.
func (s *PGStorage) AttachActualClose(ctx context.Context, symbol string, date time.Time, close float64) (models.ExpectedMoveRecord, error) {
	rec, err := scanPGRecord(s.db.QueryRow(ctx, `
		UPDATE expected_move_records
		SET actual_close = $3,
		    within_range = ($3 >= expected_low AND $3 <= expected_high)
		WHERE symbol = $1 AND trade_date = $2 AND actual_close IS NULL
		RETURNING `+pgRecordColumns,
		symbol, dayOf(date), close))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		s.l.Error("postgres settle error",
			applogger.String("symbol", symbol),
			applogger.Date("date", date),
			applogger.Error(err),
		)
		return models.ExpectedMoveRecord{}, fmt.Errorf("settle record: %w", err)
	}
	exists, err := s.Exists(ctx, symbol, date)
	if err != nil {
		return models.ExpectedMoveRecord{}, err
	}
	if exists {
		return models.ExpectedMoveRecord{}, fmt.Errorf("%s %s: %w", symbol, util.FormatDate(date), errs.ErrAlreadySettled)
	}
	return models.ExpectedMoveRecord{}, fmt.Errorf("record %s %s: %w", symbol, util.FormatDate(date), errs.ErrNotFound)
}

func (s *PGStorage) GetWeekly(ctx context.Context, symbol string) (models.WeeklyExpectedMoves, error) {
	return getPGWeekly(ctx, s.db, symbol, false)
}

func (s *PGStorage) ReplaceWeekly(ctx context.Context, w models.WeeklyExpectedMoves) error {
	days, err := json.Marshal(w.Days)
	if err != nil {
		return fmt.Errorf("encode weekly days: %w", err)
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = s.now().UTC()
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO weekly_expected_moves (symbol, week_start, week_open, annualized_iv, days, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol) DO UPDATE SET
			week_start = EXCLUDED.week_start,
			week_open = EXCLUDED.week_open,
			annualized_iv = EXCLUDED.annualized_iv,
			days = EXCLUDED.days,
			updated_at = EXCLUDED.updated_at`,
		w.Symbol, dayOf(w.WeekStart), w.WeekOpen, w.AnnualizedIV, days, w.UpdatedAt)
	if err != nil {
		s.l.Error("postgres replace_weekly error", applogger.String("symbol", w.Symbol), applogger.Error(err))
		return fmt.Errorf("replace weekly: %w", err)
	}
	return nil
}

func (s *PGStorage) SetWeeklyClose(ctx context.Context, symbol string, date time.Time, close float64) (models.WeeklyExpectedMoves, error) {
	var out models.WeeklyExpectedMoves
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		w, err := getPGWeekly(ctx, tx, symbol, true)
		if err != nil {
			return err
		}
		if err := w.SetClose(dayOf(date), close); err != nil {
			return err
		}
		w.UpdatedAt = s.now().UTC()
		days, err := json.Marshal(w.Days)
		if err != nil {
			return fmt.Errorf("encode weekly days: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE weekly_expected_moves SET days = $2, updated_at = $3 WHERE symbol = $1`,
			symbol, days, w.UpdatedAt); err != nil {
			return fmt.Errorf("update weekly: %w", err)
		}
		out = w
		return nil
	})
	if err != nil {
		return models.WeeklyExpectedMoves{}, err
	}
	return out, nil
}

type pgRowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPGWeekly(ctx context.Context, db pgRowQuerier, symbol string, forUpdate bool) (models.WeeklyExpectedMoves, error) {
	q := `SELECT symbol, week_start, week_open, annualized_iv, days, updated_at
		FROM weekly_expected_moves WHERE symbol = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var (
		w    models.WeeklyExpectedMoves
		days []byte
	)
	err := db.QueryRow(ctx, q, symbol).Scan(&w.Symbol, &w.WeekStart, &w.WeekOpen, &w.AnnualizedIV, &days, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.WeeklyExpectedMoves{}, fmt.Errorf("weekly %s: %w", symbol, errs.ErrNotFound)
	}
	if err != nil {
		return models.WeeklyExpectedMoves{}, fmt.Errorf("get weekly: %w", err)
	}
	if err := json.Unmarshal(days, &w.Days); err != nil {
		return models.WeeklyExpectedMoves{}, fmt.Errorf("decode weekly days: %w", err)
	}
	w.WeekStart = dayOf(w.WeekStart)
	return w, nil
}

func scanPGRecord(row rowScanner) (models.ExpectedMoveRecord, error) {
	var r models.ExpectedMoveRecord
	err := row.Scan(&r.Symbol, &r.TradeDate, &r.LastPrice, &r.PreviousClose, &r.AnnualizedIV, &r.ForecastIV, &r.Model,
		&r.HorizonDays, &r.DaysRemaining, &r.ExpectedMove, &r.ExpirationMove, &r.ExpectedHigh, &r.ExpectedLow,
		&r.ActualClose, &r.WithinRange, &r.CreatedAt)
	if err != nil {
		return models.ExpectedMoveRecord{}, err
	}
	r.TradeDate = dayOf(r.TradeDate)
	return r, nil
}

var _ domrepo.Storage = (*PGStorage)(nil)
