package health

import (
	"context"
	"testing"

	"kolo-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHealthTest(t *testing.T) (*Service, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &Service{Rdb: rdb}, mr
}

func TestCollect_ReadsCounters(t *testing.T) {
	s, mr := setupHealthTest(t)
	require.NoError(t, mr.Set(middleware.KeyReqTotal, "10"))
	require.NoError(t, mr.Set(middleware.KeyReqErrors, "2"))
	require.NoError(t, mr.Set(middleware.KeyResTime, "300"))
	require.NoError(t, mr.Set(middleware.KeyResCount, "10"))

	out := s.Collect(context.Background())
	assert.Equal(t, "ok", out["status"])
	requests := out["requests"].(map[string]interface{})
	assert.Equal(t, int64(10), requests["total"])
	assert.Equal(t, int64(2), requests["errors"])
	assert.Equal(t, int64(30), requests["avg_ms"])
	assert.Equal(t, true, out["redis"])
}

func TestReset_ClearsCounters(t *testing.T) {
	s, mr := setupHealthTest(t)
	require.NoError(t, mr.Set(middleware.KeyReqTotal, "10"))

	require.NoError(t, s.Reset(context.Background()))
	assert.False(t, mr.Exists(middleware.KeyReqTotal))
}
