package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"FinRange/internal/domain/errs"
	"FinRange/pkg/util"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakePgx answers statements by prefix; anything unexpected fails the test.
type fakePgx struct {
	t        *testing.T
	execTags []string
	rows     []fakeRow
	sqls     []string
}

func (f *fakePgx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.sqls = append(f.sqls, sql)
	require.NotEmpty(f.t, f.execTags, "unexpected exec: %s", sql)
	tag := f.execTags[0]
	f.execTags = f.execTags[1:]
	return pgconn.NewCommandTag(tag), nil
}

func (f *fakePgx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakePgx) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.sqls = append(f.sqls, sql)
	require.NotEmpty(f.t, f.rows, "unexpected query: %s", sql)
	r := f.rows[0]
	f.rows = f.rows[1:]
	return r
}

func (f *fakePgx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("not supported")
}

func TestPGCreateIfAbsentMapsConflictToFalse(t *testing.T) {
	db := &fakePgx{t: t, execTags: []string{"INSERT 0 1", "INSERT 0 0"}}
	s := NewPGStorageWithQuerier(db, nil)

	created, err := s.CreateIfAbsent(context.Background(), sampleRecord())
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.CreateIfAbsent(context.Background(), sampleRecord())
	require.NoError(t, err)
	require.False(t, created)
	require.Contains(t, db.sqls[0], "ON CONFLICT (symbol, trade_date) DO NOTHING")
}

func TestPGAttachActualCloseSecondTimeIsAlreadySettled(t *testing.T) {
	db := &fakePgx{t: t, rows: []fakeRow{
		{scan: func(...any) error { return pgx.ErrNoRows }},
		{scan: func(dest ...any) error { *(dest[0].(*bool)) = true; return nil }},
	}}
	s := NewPGStorageWithQuerier(db, nil)

	_, err := s.AttachActualClose(context.Background(), "ES", util.Date(2025, 10, 17), 6600)
	require.ErrorIs(t, err, errs.ErrAlreadySettled)
	require.True(t, strings.Contains(db.sqls[0], "actual_close IS NULL"))
}

func TestPGAttachActualCloseMissingRecord(t *testing.T) {
	db := &fakePgx{t: t, rows: []fakeRow{
		{scan: func(...any) error { return pgx.ErrNoRows }},
		{scan: func(dest ...any) error { *(dest[0].(*bool)) = false; return nil }},
	}}
	s := NewPGStorageWithQuerier(db, nil)

	_, err := s.AttachActualClose(context.Background(), "ES", util.Date(2025, 10, 17), 6600)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPGInitRunsSchema(t *testing.T) {
	db := &fakePgx{t: t, execTags: []string{"CREATE TABLE", "CREATE TABLE"}}
	require.NoError(t, NewPGStorageWithQuerier(db, nil).Init(context.Background()))
	require.Len(t, db.sqls, 2)
}
