package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	infraredis "github.com/jonesrussell/north-cloud/listings/infrastructure/redis"
)

func TestNewClient_EmptyAddress(t *testing.T) {
	_, err := infraredis.NewClient(context.Background(), infraredis.Config{})
	require.ErrorIs(t, err, infraredis.ErrEmptyAddress)
}

func TestNewClient_Connects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := infraredis.NewClient(context.Background(), infraredis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := infraredis.NewClient(context.Background(), infraredis.Config{Address: addr})
	require.Error(t, err)
}
