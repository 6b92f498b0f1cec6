package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Cron   CronConfig   `mapstructure:"cron"`
	Replay ReplayConfig `mapstructure:"replay"`
	Sync   SyncConfig   `mapstructure:"sync"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// RedisConfig enables the distributed sync lock when Addr is non-empty.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TradeSync    string `mapstructure:"trade_sync"`
	ReplayResume string `mapstructure:"replay_resume"`
	Warehouse    string `mapstructure:"warehouse"`
}

type ReplayConfig struct {
	PoolID          string        `mapstructure:"pool_id"`
	ResumeThreshold time.Duration `mapstructure:"resume_threshold"`
	SnapshotBatch   int           `mapstructure:"snapshot_batch"`
}

type SyncConfig struct {
	Service             string        `mapstructure:"service"`
	Strategy            string        `mapstructure:"strategy"`
	ColdStartStrategy   string        `mapstructure:"cold_start_strategy"`
	RecentDays          int           `mapstructure:"recent_days"`
	BatchSize           int           `mapstructure:"batch_size"`
	GapBatchSize        int           `mapstructure:"gap_batch_size"`
	FetchLimit          int           `mapstructure:"fetch_limit"`
	MaxHistoricalTrades int64         `mapstructure:"max_historical_trades"`
	LagRoutine          time.Duration `mapstructure:"lag_routine"`
	LagUrgent           time.Duration `mapstructure:"lag_urgent"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10m")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.trade_sync", "@every 5m")
	v.SetDefault("cron.replay_resume", "@every 15m")
	v.SetDefault("cron.warehouse", "@every 1h")
	v.SetDefault("replay.pool_id", "")
	v.SetDefault("replay.resume_threshold", "5m")
	v.SetDefault("replay.snapshot_batch", 500)
	v.SetDefault("sync.service", "trade_sync")
	v.SetDefault("sync.strategy", "auto")
	v.SetDefault("sync.cold_start_strategy", "")
	v.SetDefault("sync.recent_days", 7)
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.gap_batch_size", 50)
	v.SetDefault("sync.fetch_limit", 10000)
	v.SetDefault("sync.max_historical_trades", 1000000)
	v.SetDefault("sync.lag_routine", "5m")
	v.SetDefault("sync.lag_urgent", "1h")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
