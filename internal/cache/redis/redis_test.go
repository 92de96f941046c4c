package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/mschirtzinger/khata/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGet(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	s := New(client, "")

	mock.ExpectGet("khata:khata_local_data").SetVal(`{"customers":[]}`)
	mock.ExpectGet("khata:khata_store_name").RedisNil()
	mock.ExpectGet("khata:khata_account").SetErr(errors.New("connection reset"))

	got, err := s.Get(ctx, cache.KeySnapshot)
	require.NoError(t, err)
	assert.Equal(t, `{"customers":[]}`, string(got))

	_, err = s.Get(ctx, cache.KeyStoreName)
	assert.ErrorIs(t, err, cache.ErrNotFound)

	_, err = s.Get(ctx, cache.KeyAccount)
	require.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorePutDelete(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	s := New(client, "shop1:")

	mock.ExpectSet("shop1:khata_pending_sync", []byte("1"), 0).SetVal("OK")
	mock.ExpectDel("shop1:khata_pending_sync").SetVal(1)
	mock.ExpectSet("shop1:khata_local_data", []byte("x"), 0).SetErr(errors.New("READONLY"))

	require.NoError(t, s.Put(ctx, cache.KeyPending, []byte("1")))
	require.NoError(t, s.Delete(ctx, cache.KeyPending))
	assert.Error(t, s.Put(ctx, cache.KeySnapshot, []byte("x")))

	assert.NoError(t, mock.ExpectationsWereMet())
}
