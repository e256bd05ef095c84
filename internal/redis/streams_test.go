package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishToStream_StringifiesValues(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	_, err := PublishToStream(ctx, client, "s", 0, map[string]interface{}{
		"n":    42,
		"ok":   true,
		"name": "ESP32-01",
		"obj":  []int{1, 2},
	})
	require.NoError(t, err)

	msgs, err := client.XRange(ctx, "s", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", msgs[0].Values["n"])
	assert.Equal(t, "true", msgs[0].Values["ok"])
	assert.Equal(t, "ESP32-01", msgs[0].Values["name"])
	assert.Equal(t, "[1,2]", msgs[0].Values["obj"])
}
