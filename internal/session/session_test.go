package session

import (
	"context"
	"testing"
	"time"

	"compliance-dashboard/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder_SetClearNotifies(t *testing.T) {
	h := NewHolder()
	_, ok := h.Current()
	assert.False(t, ok)

	var seen []*domain.Session
	cancel := h.Subscribe(func(s *domain.Session) { seen = append(seen, s) })

	h.Set(&domain.Session{Token: "t1", Name: "Alice", Role: domain.RolePatient, RoleID: "P1"})
	cur, ok := h.Current()
	require.True(t, ok)
	assert.Equal(t, "Alice", cur.Name)

	// 返回副本，外部修改不影响持有的会话
	cur.Name = "Mallory"
	again, _ := h.Current()
	assert.Equal(t, "Alice", again.Name)

	h.Clear()
	_, ok = h.Current()
	assert.False(t, ok)

	require.Len(t, seen, 2)
	assert.Equal(t, "t1", seen[0].Token)
	assert.Nil(t, seen[1])

	cancel()
	h.Set(&domain.Session{Token: "t2"})
	assert.Len(t, seen, 2)
}

func TestMemoryStore_RoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	sess := &domain.Session{Token: "tok-1", Name: "Bob", Role: domain.RoleDoctor, RoleID: "D1", UserID: "u9"}
	require.NoError(t, s.Put(ctx, sess))

	got, err := s.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDoctor, got.Role)
	assert.Equal(t, "u9", got.SubjectID())

	require.NoError(t, s.Delete(ctx, "tok-1"))
	_, err = s.Get(ctx, "tok-1")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	assert.Error(t, s.Put(ctx, &domain.Session{}))
}

func TestRedisStore_ExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	s := NewRedisStore(client, 10*time.Minute)
	require.NoError(t, s.Put(ctx, &domain.Session{Token: "abc", Name: "Alice", Role: domain.RolePatient}))

	assert.True(t, mr.Exists("session:abc"))
	assert.Equal(t, 10*time.Minute, mr.TTL("session:abc"))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	mr.FastForward(11 * time.Minute)
	_, err = s.Get(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, mr.Set("session:bad", "{not json"))
	_, err := NewRedisStore(client, 0).Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotAuthenticated)
}
