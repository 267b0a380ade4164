package profiling

import (
	"context"
	"maps"
	"runtime"

	"rewards-controlplane/pkg/config"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("profiling", fx.Invoke(ProvideProfiling))

const contentionRate = 5

func profileTypes(contended bool) []pyroscope.ProfileType {
	types := []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileAllocObjects,
		pyroscope.ProfileAllocSpace,
		pyroscope.ProfileInuseObjects,
		pyroscope.ProfileInuseSpace,
		pyroscope.ProfileGoroutines,
	}
	if contended {
		types = append(types,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		)
	}
	return types
}

func tags(c *config.Config) map[string]string {
	out := map[string]string{
		"service_name": c.AppName,
		"env":          c.AppEnv,
	}
	if c.AppVersion != "" {
		out["version"] = c.AppVersion
	}
	maps.Copy(out, c.Pyroscope.Tags)
	return out
}

// ProvideProfiling starts continuous profiling when PYROSCOPE.ADDR is configured.
func ProvideProfiling(lc fx.Lifecycle, c *config.Config) error {
	if c.Pyroscope.Addr == "" {
		return nil
	}

	if c.Pyroscope.Contended {
		runtime.SetMutexProfileFraction(contentionRate)
		runtime.SetBlockProfileRate(contentionRate)
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: c.AppName,
		ServerAddress:   c.Pyroscope.Addr,
		ProfileTypes:    profileTypes(c.Pyroscope.Contended),
		Tags:            tags(c),
	})
	if err != nil {
		return err
	}
	zap.L().Info("[Pyroscope] profiling started", zap.String("addr", c.Pyroscope.Addr), zap.Bool("contended", c.Pyroscope.Contended))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return profiler.Stop()
		},
	})

	return nil
}
