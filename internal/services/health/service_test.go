package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckWithoutDatabase(t *testing.T) {
	r := NewService(nil, "memory").Check(context.Background())
	assert.Equal(t, Report{OK: true, Storage: "memory", Database: "n/a"}, r)
}

func TestCheckPingsDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	r := NewService(db, "postgres").Check(context.Background())
	assert.True(t, r.OK)
	assert.Equal(t, "up", r.Database)
	assert.Contains(t, r.Pool, "open")

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	r = NewService(db, "postgres").Check(context.Background())
	assert.False(t, r.OK)
	assert.Equal(t, "down", r.Database)
	require.NoError(t, mock.ExpectationsWereMet())
}
