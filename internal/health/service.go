package health

import (
	"context"

	"kolo-backend/internal/middleware"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Service collects process health from Redis request counters and a DB ping.
type Service struct {
	Rdb *redis.Client
	DB  *gorm.DB
}

// Collect returns the health snapshot served by the health endpoint.
func (s *Service) Collect(ctx context.Context) map[string]interface{} {
	out := map[string]interface{}{
		"status": "ok",
	}

	if s.Rdb != nil {
		reqTotal, _ := s.Rdb.Get(ctx, middleware.KeyReqTotal).Int64()
		reqErrors, _ := s.Rdb.Get(ctx, middleware.KeyReqErrors).Int64()
		resTime, _ := s.Rdb.Get(ctx, middleware.KeyResTime).Int64()
		resCount, _ := s.Rdb.Get(ctx, middleware.KeyResCount).Int64()

		var avgMs int64
		if resCount > 0 {
			avgMs = resTime / resCount
		}
		out["requests"] = map[string]interface{}{
			"total":  reqTotal,
			"errors": reqErrors,
			"avg_ms": avgMs,
		}
		out["redis"] = s.Rdb.Ping(ctx).Err() == nil
	}

	if s.DB != nil {
		dbOK := false
		if sqlDB, err := s.DB.DB(); err == nil {
			dbOK = sqlDB.PingContext(ctx) == nil
		}
		out["database"] = dbOK
		if !dbOK {
			out["status"] = "degraded"
		}
	}

	return out
}

// Reset clears the request counters.
func (s *Service) Reset(ctx context.Context) error {
	if s.Rdb == nil {
		return nil
	}
	return s.Rdb.Del(ctx,
		middleware.KeyReqTotal,
		middleware.KeyReqErrors,
		middleware.KeyResTime,
		middleware.KeyResCount,
	).Err()
}
