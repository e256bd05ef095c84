package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPostgresRecorder_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO dashboard_audit").
		WithArgs("LOGIN", "patient", "u1", "name=Alice", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r := NewPostgresRecorder(db)
	require.NoError(t, r.Record(context.Background(), Event{
		Action: ActionLogin, Role: "patient", Subject: "u1", Details: "name=Alice", At: at,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorder_EnsureSchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS dashboard_audit").WillReturnError(errors.New("permission denied"))
	err = NewPostgresRecorder(db).EnsureSchema(context.Background())
	assert.ErrorContains(t, err, "permission denied")
}

func TestMulti_WritesAllAndReturnsFirstError(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("INSERT INTO dashboard_audit").WillReturnError(errors.New("db down"))

	m := Multi{NewPostgresRecorder(db), NewZapRecorder(zap.New(core))}
	err = m.Record(context.Background(), Event{Action: ActionLogout, Subject: "u1"})
	require.Error(t, err)

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "LOGOUT", entries[0].ContextMap()["action"])
}
