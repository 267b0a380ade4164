package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv        string `mapstructure:"APP_ENV"`
	AppName       string `mapstructure:"APP_NAME"`
	AppVersion    string `mapstructure:"APP_VERSION"`
	SnowflakeNode int64  `mapstructure:"SNOWFLAKE_NODE"`
	TLS           struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string            `mapstructure:"ADDR"`
		Protocol string            `mapstructure:"PROTOCOL"` // grpc | http
		Insecure bool              `mapstructure:"INSECURE"`
		Timeout  time.Duration     `mapstructure:"TIMEOUT"`
		Headers  map[string]string `mapstructure:"HEADERS"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr      string            `mapstructure:"ADDR"`
		Tags      map[string]string `mapstructure:"TAGS"`
		Contended bool              `mapstructure:"CONTENDED"` // adds mutex and block profiles
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		ConnectRetries int    `mapstructure:"CONNECT_RETRIES"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
		// Startup ping attempts; order codes fall back to snowflake ids while redis is down.
		PingAttempts int           `mapstructure:"PING_ATTEMPTS"`
		PingBackoff  time.Duration `mapstructure:"PING_BACKOFF"`
	} `mapstructure:"REDIS"`
	Auth struct {
		Secret string `mapstructure:"SECRET"`
		Issuer string `mapstructure:"ISSUER"`
	} `mapstructure:"AUTH"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Worker struct {
		Concurrency     int           `mapstructure:"CONCURRENCY"`
		ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	} `mapstructure:"WORKER"`
	Notification struct {
		Async bool   `mapstructure:"ASYNC"`
		Queue string `mapstructure:"QUEUE"`
	} `mapstructure:"NOTIFICATION"`
	Reconcile struct {
		Enable bool   `mapstructure:"ENABLE"`
		Spec   string `mapstructure:"SPEC"`
	} `mapstructure:"RECONCILE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "rewards-controlplane")
	v.SetDefault("SNOWFLAKE_NODE", 1)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECT_RETRIES", 5)
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("OTEL.INSECURE", true)
	v.SetDefault("OTEL.TIMEOUT", 10*time.Second)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS.PING_ATTEMPTS", 5)
	v.SetDefault("REDIS.PING_BACKOFF", 3*time.Second)
	v.SetDefault("AUTH.ISSUER", "rewards-controlplane")
	v.SetDefault("WORKER.CONCURRENCY", 10)
	v.SetDefault("WORKER.SHUTDOWN_TIMEOUT", 8*time.Second)
	v.SetDefault("NOTIFICATION.QUEUE", "notifications")
	v.SetDefault("RECONCILE.SPEC", "0 2 * * *")
}

func LoadConfig(p Params) *Config {
	// .env is optional; real deployments inject env vars directly
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("no .env file loaded", zap.Error(err))
	}

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Warn("config.yaml not found, using env and defaults")
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := applySecrets(context.Background(), p.Vault, &cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return &cfg
}

func applySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	if v := get("database_user"); v != "" {
		cfg.Database.User = v
	}
	if v := get("database_password"); v != "" {
		cfg.Database.Password = v
	}
	if v := get("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	if v := get("auth_secret"); v != "" {
		cfg.Auth.Secret = v
	}

	return nil
}

// IsProduction reports whether the service runs with production logging and db settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
