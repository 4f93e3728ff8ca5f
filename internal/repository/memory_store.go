package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	domrepo "FinRange/internal/domain/repository"
	"FinRange/pkg/util"
)

type recordKey struct {
	symbol string
	date   time.Time
}

func keyOf(symbol string, date time.Time) recordKey {
	return recordKey{symbol: symbol, date: util.Date(date.Date())}
}

// MemoryStorage keeps records and weekly rows in process. Used for tests and
// single-instance deployments.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[recordKey]models.ExpectedMoveRecord
	weekly  map[string]models.WeeklyExpectedMoves
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[recordKey]models.ExpectedMoveRecord),
		weekly:  make(map[string]models.WeeklyExpectedMoves),
	}
}

func (s *MemoryStorage) Init(context.Context) error   { return nil }
func (s *MemoryStorage) Health(context.Context) error { return nil }
func (s *MemoryStorage) Close() error                 { return nil }

func (s *MemoryStorage) Exists(_ context.Context, symbol string, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[keyOf(symbol, date)]
	return ok, nil
}

func (s *MemoryStorage) CreateIfAbsent(_ context.Context, rec *models.ExpectedMoveRecord) (bool, error) {
	k := keyOf(rec.Symbol, rec.TradeDate)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[k]; ok {
		return false, nil
	}
	s.records[k] = cloneRecord(*rec)
	return true, nil
}

func (s *MemoryStorage) Get(_ context.Context, symbol string, date time.Time) (models.ExpectedMoveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[keyOf(symbol, date)]
	if !ok {
		return models.ExpectedMoveRecord{}, fmt.Errorf("record %s %s: %w", symbol, util.FormatDate(date), errs.ErrNotFound)
	}
	return cloneRecord(r), nil
}

func (s *MemoryStorage) List(_ context.Context, symbol string, from, to time.Time) ([]models.ExpectedMoveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ExpectedMoveRecord, 0)
	for k, r := range s.records {
		if k.symbol != symbol || k.date.Before(from) || k.date.After(to) {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out, nil
}

func (s *MemoryStorage) AttachActualClose(_ context.Context, symbol string, date time.Time, close float64) (models.ExpectedMoveRecord, error) {
	k := keyOf(symbol, date)
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[k]
	if !ok {
		return models.ExpectedMoveRecord{}, fmt.Errorf("record %s %s: %w", symbol, util.FormatDate(date), errs.ErrNotFound)
	}
	if err := r.Settle(close); err != nil {
		return models.ExpectedMoveRecord{}, err
	}
	s.records[k] = r
	return cloneRecord(r), nil
}

func (s *MemoryStorage) GetWeekly(_ context.Context, symbol string) (models.WeeklyExpectedMoves, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.weekly[symbol]
	if !ok {
		return models.WeeklyExpectedMoves{}, fmt.Errorf("weekly %s: %w", symbol, errs.ErrNotFound)
	}
	return cloneWeekly(w), nil
}

func (s *MemoryStorage) ReplaceWeekly(_ context.Context, w models.WeeklyExpectedMoves) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weekly[w.Symbol] = cloneWeekly(w)
	return nil
}

func (s *MemoryStorage) SetWeeklyClose(_ context.Context, symbol string, date time.Time, close float64) (models.WeeklyExpectedMoves, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.weekly[symbol]
	if !ok {
		return models.WeeklyExpectedMoves{}, fmt.Errorf("weekly %s: %w", symbol, errs.ErrNotFound)
	}
	w = cloneWeekly(w)
	if err := w.SetClose(util.Date(date.Date()), close); err != nil {
		return models.WeeklyExpectedMoves{}, err
	}
	s.weekly[symbol] = w
	return cloneWeekly(w), nil
}

func cloneRecord(r models.ExpectedMoveRecord) models.ExpectedMoveRecord {
	if r.ActualClose != nil {
		v := *r.ActualClose
		r.ActualClose = &v
	}
	if r.WithinRange != nil {
		v := *r.WithinRange
		r.WithinRange = &v
	}
	return r
}

func cloneWeekly(w models.WeeklyExpectedMoves) models.WeeklyExpectedMoves {
	days := make([]models.DayBand, len(w.Days))
	for i, d := range w.Days {
		if d.ActualClose != nil {
			v := *d.ActualClose
			d.ActualClose = &v
		}
		days[i] = d
	}
	w.Days = days
	return w
}

// MemoryContracts holds configured contracts and their nightly state.
type MemoryContracts struct {
	mu        sync.RWMutex
	order     []string
	contracts map[string]models.Contract
}

func NewMemoryContracts(cs []models.Contract) *MemoryContracts {
	m := &MemoryContracts{contracts: make(map[string]models.Contract, len(cs))}
	for _, c := range cs {
		if _, dup := m.contracts[c.Symbol]; !dup {
			m.order = append(m.order, c.Symbol)
		}
		m.contracts[c.Symbol] = c
	}
	return m
}

func (m *MemoryContracts) List(context.Context) ([]models.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Contract, 0, len(m.order))
	for _, s := range m.order {
		out = append(out, m.contracts[s])
	}
	return out, nil
}

func (m *MemoryContracts) Get(_ context.Context, symbol string) (models.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[symbol]
	if !ok {
		return models.Contract{}, fmt.Errorf("contract %s: %w", symbol, errs.ErrNotFound)
	}
	return c, nil
}

func (m *MemoryContracts) Save(_ context.Context, c models.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contracts[c.Symbol]; !ok {
		return fmt.Errorf("contract %s: %w", c.Symbol, errs.ErrNotFound)
	}
	m.contracts[c.Symbol] = c
	return nil
}

// MemoryState is a process-local StateStore.
type MemoryState struct {
	mu sync.Mutex
	st models.SchedulerState
}

func NewMemoryState() *MemoryState { return &MemoryState{} }

func (m *MemoryState) Load(context.Context) (models.SchedulerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st, nil
}

func (m *MemoryState) Save(_ context.Context, st models.SchedulerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st
	return nil
}

var (
	_ domrepo.Storage       = (*MemoryStorage)(nil)
	_ domrepo.ContractStore = (*MemoryContracts)(nil)
	_ domrepo.StateStore    = (*MemoryState)(nil)
)
