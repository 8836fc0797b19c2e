package database

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/certeval-api/internal/models"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := Open("sqlite://file:database_test?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	require.True(t, db.Migrator().HasTable(&models.EvaluationRecord{}))
	require.True(t, db.Migrator().HasIndex(&models.EvaluationRecord{}, "idx_evaluation_user_template"))
	require.True(t, db.Migrator().HasTable("knowledge_areas"))
}

func TestConnectRejectsEmptyDSN(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)

	_, err = ConnectSQLite("")
	require.Error(t, err)

	_, err = ConnectRedis("")
	require.Error(t, err)

	_, err = ConnectNATS("", "test")
	require.Error(t, err)
}

func TestProbesReportDependencyState(t *testing.T) {
	db, err := Open("sqlite://file:database_probe?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, SQLProbe(db)(context.Background()))

	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client, err := ConnectRedis("redis://" + server.Addr())
	require.NoError(t, err)
	defer client.Close()

	probe := RedisProbe(client)
	require.NoError(t, probe(context.Background()))

	server.SetError("LOADING dataset")
	require.Error(t, probe(context.Background()))
}

func TestConnectRedisFailsFastWhenUnreachable(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	addr := server.Addr()
	server.Close()

	_, err = ConnectRedis("redis://" + addr)
	require.Error(t, err)
}
