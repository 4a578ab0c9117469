package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "client.db")

	s, err := OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	token, err := s.LoadToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, s.SaveToken(ctx, "old"))
	require.NoError(t, s.SaveToken(ctx, "new"))
	token, err = s.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", token)

	require.NoError(t, s.ClearToken(ctx))
	token, err = s.LoadToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='metadata'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteStorage_Errors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		expect  func(m sqlmock.Sqlmock)
		call    func(s *SQLiteStorage) error
		wantMsg string
	}{
		{
			name: "load",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM metadata WHERE key = ?`)).
					WithArgs(TokenKey).WillReturnError(boom)
			},
			call: func(s *SQLiteStorage) error {
				_, err := s.LoadToken(context.Background())
				return err
			},
			wantMsg: "failed to get metadata[token]",
		},
		{
			name: "save",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(`INSERT INTO metadata`)).
					WithArgs(TokenKey, "abc").WillReturnError(boom)
			},
			call:    func(s *SQLiteStorage) error { return s.SaveToken(context.Background(), "abc") },
			wantMsg: "failed to set metadata[token]",
		},
		{
			name: "clear",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(`DELETE FROM metadata WHERE key = ?`)).
					WithArgs(TokenKey).WillReturnError(boom)
			},
			call:    func(s *SQLiteStorage) error { return s.ClearToken(context.Background()) },
			wantMsg: "failed to delete metadata[token]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.expect(mock)

			err = tt.call(NewSQLiteStorage(db))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.ErrorIs(t, err, boom)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLiteStorage_LoadMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM metadata WHERE key = ?`)).
		WithArgs(TokenKey).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	token, err := NewSQLiteStorage(db).LoadToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.NoError(t, mock.ExpectationsWereMet())
}
