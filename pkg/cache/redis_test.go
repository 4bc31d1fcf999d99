package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheWithClient(db, "lagscope")
	ctx := context.Background()

	mock.ExpectGet("lagscope:k").SetVal(`{"t":1,"v":null}`)
	var got map[string]interface{}
	require.NoError(t, rc.Get(ctx, "k", &got))
	assert.EqualValues(t, 1, got["t"])
	assert.Nil(t, got["v"])

	mock.ExpectGet("lagscope:missing").RedisNil()
	assert.ErrorIs(t, rc.Get(ctx, "missing", &got), ErrCacheMiss)

	boom := errors.New("conn reset")
	mock.ExpectGet("lagscope:err").SetErr(boom)
	assert.ErrorIs(t, rc.Get(ctx, "err", &got), boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_SetJSON(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheWithClient(db, "lagscope")
	ctx := context.Background()

	mock.ExpectSet("lagscope:k", []byte(`[1,2]`), 5*time.Minute).SetVal("OK")
	require.NoError(t, rc.Set(ctx, "k", []int{1, 2}, 5*time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_DeleteExists(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheWithClient(db, "p")
	ctx := context.Background()

	mock.ExpectUnlink("p:a", "p:b").SetVal(2)
	require.NoError(t, rc.Delete(ctx, "a", "b"))

	mock.ExpectExists("p:a").SetVal(0)
	ok, err := rc.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLayeredCache_PromotesFromL2(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l2 := NewRedisCacheWithClient(db, "p")
	lc := NewLayeredCache(l2, 10, time.Minute)
	ctx := context.Background()

	mock.ExpectGet("p:k").SetVal(`"v"`)
	var s string
	require.NoError(t, lc.Get(ctx, "k", &s))
	assert.Equal(t, "v", s)

	// second read is served from L1; no further redis expectation
	s = ""
	require.NoError(t, lc.Get(ctx, "k", &s))
	assert.Equal(t, "v", s)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLayeredCache_WriteThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lc := NewLayeredCache(NewRedisCacheWithClient(db, "p"), 10, time.Minute)
	ctx := context.Background()

	mock.ExpectSet("p:k", []byte(`"v"`), 5*time.Minute).SetErr(errors.New("down"))
	assert.Error(t, lc.Set(ctx, "k", "v", 5*time.Minute))
	ok, _ := lc.l1.Exists(ctx, "k")
	assert.False(t, ok, "l1 is not written when l2 fails")

	mock.ExpectSet("p:k", []byte(`"v"`), 5*time.Minute).SetVal("OK")
	require.NoError(t, lc.Set(ctx, "k", "v", 5*time.Minute))
	ok, _ = lc.l1.Exists(ctx, "k")
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
