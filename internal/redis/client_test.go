package redis

import (
	"context"
	"testing"

	"compliance-dashboard/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_PoolDefaults(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisClient(&config.RedisConfig{Addr: mr.Addr()})
	defer c.Close()

	assert.Equal(t, defaultPoolSize, c.Options().PoolSize)
	assert.Equal(t, ioTimeout, c.Options().ReadTimeout)
	require.NoError(t, Ping(context.Background(), c))

	c2 := NewRedisClient(&config.RedisConfig{Addr: mr.Addr(), PoolSize: 3})
	defer c2.Close()
	assert.Equal(t, 3, c2.Options().PoolSize)
}

func TestPing_UnreachableNamesAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	c := NewRedisClient(&config.RedisConfig{Addr: addr})
	defer c.Close()
	err := Ping(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}
