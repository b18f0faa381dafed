package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teed-waitlist/internal/common/config"
)

func TestMigrate_RunsAllStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	for range schemaStatements {
		mock.ExpectExec(".+").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchema_ThresholdColumnIsNotRounded(t *testing.T) {
	var sawCreate, sawAlter bool
	for _, stmt := range schemaStatements {
		if strings.Contains(stmt, "auto_approval_threshold NUMERIC") {
			t.Fatalf("threshold column must not round: %s", stmt)
		}
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS scoring_config (") {
			sawCreate = strings.Contains(stmt, "auto_approval_threshold DOUBLE PRECISION")
		}
		if strings.HasPrefix(stmt, "ALTER TABLE scoring_config") {
			sawAlter = strings.Contains(stmt, "TYPE DOUBLE PRECISION")
		}
	}
	assert.True(t, sawCreate, "new tables get a double precision threshold")
	assert.True(t, sawAlter, "existing tables are converted")
}

func TestMigrate_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scoring_config").
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration step 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	c := NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer c.Close()
	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
