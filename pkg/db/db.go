package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rewards-controlplane/pkg/config"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(RegisterConnectionPool),
)

const retryBackoff = 3 * time.Second

// Dialect picks the gorm dialector from DATABASE.TYPE.
func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	d := cfg.Database
	switch strings.ToLower(d.Type) {
	case "postgres", "postgresql", "":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			d.Host, d.Port, d.User, d.Password, d.DBNAME, d.SSLMode, d.Timezone)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBNAME)
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(d.DBNAME), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", d.Type)
	}
}

// New opens the database, retrying while it comes up, and installs the tracing plugin.
// Production also exports pool and server metrics.
func New(cfg *config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	level, showSQL := logger.Info, true
	if cfg.IsProduction() {
		level, showSQL = logger.Warn, false
	}
	gcfg := &gorm.Config{Logger: NewZapGormLogger(zap.L(), level, showSQL)}

	attempts := max(cfg.Database.ConnectRetries, 1)
	var (
		db  *gorm.DB
		err error
	)
	for i := 1; i <= attempts; i++ {
		if db, err = gorm.Open(dialector, gcfg); err == nil {
			break
		}
		if i < attempts {
			zap.L().Warn("[DB] database not ready", zap.Int("attempt", i), zap.Duration("backoff", retryBackoff), zap.Error(err))
			time.Sleep(retryBackoff)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialector.Name(), err)
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("register otelgorm: %w", err)
	}

	if cfg.IsProduction() {
		if err := db.Use(metricsPlugin(db.Dialector)); err != nil {
			return nil, fmt.Errorf("register gorm prometheus: %w", err)
		}
	}

	zap.L().Info("[DB] connected", zap.String("dialect", dialector.Name()))
	return db, nil
}

type connectionPoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Config    *config.Config
}

func RegisterConnectionPool(p connectionPoolParams) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("sql.DB from gorm: %w", err)
	}

	cp := p.Config.Database.ConnectionPool
	if cp.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cp.MaxIdleConn)
	}
	if cp.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cp.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cp.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cp.ConnMaxIdleTime)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[DB] closing connection pool")
			return sqlDB.Close()
		},
	})
	return nil
}

func metricsPlugin(d gorm.Dialector) *prometheus.Prometheus {
	pcfg := prometheus.Config{
		DBName:          dbName(d),
		RefreshInterval: 15,
	}
	switch d.(type) {
	case *mysql.Dialector:
		pcfg.MetricsCollector = []prometheus.MetricsCollector{
			&prometheus.MySQL{VariableNames: []string{"Threads_running", "Threads_connected"}},
		}
	case *postgres.Dialector:
		pcfg.MetricsCollector = []prometheus.MetricsCollector{&prometheus.Postgres{}}
	}
	return prometheus.New(pcfg)
}

// dbName extracts the database name from a postgres key=value DSN or a mysql URL DSN.
func dbName(d gorm.Dialector) string {
	var dsn string
	switch v := d.(type) {
	case *postgres.Dialector:
		dsn = v.Config.DSN
		for _, kv := range strings.Fields(dsn) {
			if name, ok := strings.CutPrefix(kv, "dbname="); ok {
				return name
			}
		}
		return "unknown"
	case *mysql.Dialector:
		dsn = v.Config.DSN
	default:
		return "unknown"
	}

	_, rest, ok := strings.Cut(dsn, ")/")
	if !ok {
		return "unknown"
	}
	name, _, _ := strings.Cut(rest, "?")
	if name == "" {
		return "unknown"
	}
	return name
}
