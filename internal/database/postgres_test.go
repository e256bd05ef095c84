package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"compliance-dashboard/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReady_AppliesAuditPoolDefaults(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	require.NoError(t, ready(context.Background(), db, &config.DatabaseConfig{MaxIdle: 10}))
	assert.Equal(t, defaultMaxConns, db.Stats().MaxOpenConnections)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReady_HonoursConfiguredPool(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	cfg := &config.DatabaseConfig{MaxConns: 12, MaxIdle: 3, ConnMaxLifetime: time.Minute}
	require.NoError(t, ready(context.Background(), db, cfg))
	assert.Equal(t, 12, db.Stats().MaxOpenConnections)
}

func TestReady_PingFailureNamesDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err = ready(context.Background(), db, &config.DatabaseConfig{Host: "audit-db", Port: 5432, Database: "compliance"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit-db:5432/compliance")
	assert.Contains(t, err.Error(), "connection refused")
}
