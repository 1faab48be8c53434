package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	AcquireWait   string `json:"acquire_wait"`
}

func poolStats(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	return PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		AcquireWait:   stat.AcquireDuration().String(),
	}
}

// DependencyCheck is an extra dependency reported by the health endpoint, such
// as the dashboard cache.
type DependencyCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// RunChecks executes every check and returns per-check results and whether
// all required checks passed.
func RunChecks(ctx context.Context, checks []DependencyCheck) (map[string]string, bool) {
	results := make(map[string]string, len(checks))
	healthy := true
	for _, p := range checks {
		if err := p.Check(ctx); err != nil {
			results[p.Name] = err.Error()
			if !p.Optional {
				healthy = false
			}
			continue
		}
		results[p.Name] = "ok"
	}
	return results, healthy
}

// HealthHandler pings the database plus any extra checks.
func HealthHandler(pool *pgxpool.Pool, checks ...DependencyCheck) echo.HandlerFunc {
	all := append([]DependencyCheck{{Name: "postgres", Check: pool.Ping}}, checks...)
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		results, healthy := RunChecks(ctx, all)
		body := map[string]interface{}{
			"status": "healthy",
			"checks": results,
			"pool":   poolStats(pool),
		}
		if !healthy {
			body["status"] = "unhealthy"
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}
