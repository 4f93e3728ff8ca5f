package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	drepo "FinRange/internal/domain/repository"
	applogger "FinRange/pkg/logger"
	"FinRange/pkg/util"
)

// Settler attaches realized closes to daily records and weekly bands. The
// HTTP API, the settlement consumer and the daily job all go through it.
type Settler struct {
	records drepo.RecordStore
	weekly  drepo.WeeklyStore
	metrics drepo.Metrics
	log     *applogger.Logger
}

func NewSettler(records drepo.RecordStore, weekly drepo.WeeklyStore, metrics drepo.Metrics, log *applogger.Logger) *Settler {
	if log == nil {
		log = applogger.Nop()
	}
	return &Settler{records: records, weekly: weekly, metrics: metrics, log: log.Component("settlement")}
}

func validSettlement(symbol string, close float64) error {
	if strings.TrimSpace(symbol) == "" {
		return fmt.Errorf("symbol is required: %w", errs.ErrInvalidArgument)
	}
	if close <= 0 || math.IsNaN(close) || math.IsInf(close, 0) {
		return fmt.Errorf("close must be positive, got %v: %w", close, errs.ErrInvalidArgument)
	}
	return nil
}

// SettleRecord attaches close to the record of (symbol, date). A record can
// be settled once; later attempts fail with ErrAlreadySettled.
func (s *Settler) SettleRecord(ctx context.Context, symbol string, date time.Time, close float64) (models.ExpectedMoveRecord, error) {
	if err := validSettlement(symbol, close); err != nil {
		return models.ExpectedMoveRecord{}, err
	}
	rec, err := s.records.AttachActualClose(ctx, symbol, util.Date(date.Date()), close)
	if err != nil {
		return models.ExpectedMoveRecord{}, err
	}
	s.log.Info("record settled",
		applogger.String("symbol", symbol),
		applogger.Date("date", rec.TradeDate),
		applogger.Float64("close", close),
		applogger.Bool("within_range", rec.WithinRange != nil && *rec.WithinRange),
	)
	return rec, nil
}

// SetWeeklyClose fills the band dated date in the symbol's weekly row.
func (s *Settler) SetWeeklyClose(ctx context.Context, symbol string, date time.Time, close float64) (models.WeeklyExpectedMoves, error) {
	if err := validSettlement(symbol, close); err != nil {
		return models.WeeklyExpectedMoves{}, err
	}
	return s.weekly.SetWeeklyClose(ctx, symbol, util.Date(date.Date()), close)
}

// Apply settles the record and fills the weekly band when one exists for
// that date. Only the record outcome is reported.
func (s *Settler) Apply(ctx context.Context, st models.Settlement) (models.ExpectedMoveRecord, error) {
	rec, err := s.SettleRecord(ctx, st.Symbol, st.Date, st.Close)
	if err != nil {
		return models.ExpectedMoveRecord{}, err
	}
	if _, err := s.SetWeeklyClose(ctx, st.Symbol, st.Date, st.Close); err != nil && !errors.Is(err, errs.ErrNotFound) {
		s.metrics.RecordError("weekly_close")
		s.log.Warn("weekly close not recorded",
			applogger.String("symbol", st.Symbol),
			applogger.Date("date", st.Date),
			applogger.Error(err),
		)
	}
	return rec, nil
}
