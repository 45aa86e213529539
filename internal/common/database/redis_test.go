package database

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedClient(t *testing.T) (*RedisClient, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() { db.Close() })
	return NewRedisFromClient(db), mock
}

func TestRedisClient_GetSet(t *testing.T) {
	client, mock := newMockedClient(t)
	ctx := context.Background()

	mock.ExpectSet("rec:product:p-1", "payload", time.Minute).SetVal("OK")
	mock.ExpectGet("rec:product:p-1").SetVal("payload")

	require.NoError(t, client.Set(ctx, "rec:product:p-1", "payload", time.Minute))

	val, err := client.Get(ctx, "rec:product:p-1")
	require.NoError(t, err)
	assert.Equal(t, "payload", val)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_GetMiss(t *testing.T) {
	client, mock := newMockedClient(t)

	mock.ExpectGet("missing").RedisNil()

	_, err := client.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestRedisClient_Del(t *testing.T) {
	client, mock := newMockedClient(t)

	mock.ExpectDel("a", "b").SetVal(2)

	require.NoError(t, client.Del(context.Background(), "a", "b"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_ScanKeysFollowsCursor(t *testing.T) {
	client, mock := newMockedClient(t)

	mock.ExpectScan(0, "rec:result:*", 100).SetVal([]string{"rec:result:a", "rec:result:b"}, 7)
	mock.ExpectScan(7, "rec:result:*", 100).SetVal([]string{"rec:result:c"}, 0)

	keys, err := client.ScanKeys(context.Background(), "rec:result:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"rec:result:a", "rec:result:b", "rec:result:c"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}
