package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"

	checkTimeout = 2 * time.Second
)

type Dependency struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Critical bool   `json:"critical"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
	Check(ctx context.Context) *Health
}

// probe is one dependency check. A failing non-critical probe degrades the service
// without taking it out of rotation.
type probe struct {
	name     string
	critical bool
	ping     func(ctx context.Context) error
}

type health struct {
	probes []probe
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	h := &health{}
	if p.DB != nil {
		db := p.DB
		h.probes = append(h.probes, probe{name: db.Name(), critical: true, ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}
	if p.Redis != nil {
		// order codes fall back to snowflake ids without redis
		rdb := p.Redis
		h.probes = append(h.probes, probe{name: "redis", ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return h
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{Status: statusHealthy, Message: "OK", Deps: []Dependency{}})
}

func (h *health) Readiness(c *gin.Context) {
	res := h.Check(c.Request.Context())
	code := http.StatusOK
	if res.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, res)
}

// Check runs every probe concurrently, each bounded by checkTimeout.
func (h *health) Check(ctx context.Context) *Health {
	deps := make([]Dependency, len(h.probes))

	var g errgroup.Group
	for i, p := range h.probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			dep := Dependency{Name: p.name, Status: statusHealthy, Message: "OK", Critical: p.critical}
			if err := p.ping(pctx); err != nil {
				dep.Status, dep.Message = statusUnhealthy, err.Error()
			}
			deps[i] = dep
			return nil
		})
	}
	_ = g.Wait()

	res := &Health{Status: statusHealthy, Message: "OK", Deps: deps}
	for _, dep := range deps {
		if dep.Status == statusHealthy {
			continue
		}
		if dep.Critical {
			res.Status, res.Message = statusUnhealthy, "critical dependency unavailable"
			break
		}
		res.Status, res.Message = statusDegraded, "optional dependency unavailable"
	}
	return res
}
