package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/tailored-agentic-units/chatstream/core/config"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverRedis    = "redis"
)

// RedisConfig configures the Redis driver.
type RedisConfig struct {
	Addr     string          `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string          `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int             `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix   string          `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	TTL      config.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// Config selects and configures the persistence backend.
type Config struct {
	Driver string      `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN    string      `json:"dsn,omitempty" yaml:"dsn,omitempty"`   // sqlite, postgres, mysql
	Path   string      `json:"path,omitempty" yaml:"path,omitempty"` // file
	Redis  RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// DefaultConfig returns an in-memory store configuration.
func DefaultConfig() Config {
	return Config{
		Driver: DriverMemory,
		Path:   "data",
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "chatstream:",
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Driver != "" {
		c.Driver = source.Driver
	}
	if source.DSN != "" {
		c.DSN = source.DSN
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.Redis.Addr != "" {
		c.Redis.Addr = source.Redis.Addr
	}
	if source.Redis.Password != "" {
		c.Redis.Password = source.Redis.Password
	}
	if source.Redis.DB != 0 {
		c.Redis.DB = source.Redis.DB
	}
	if source.Redis.Prefix != "" {
		c.Redis.Prefix = source.Redis.Prefix
	}
	if source.Redis.TTL > 0 {
		c.Redis.TTL = source.Redis.TTL
	}
}

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		return NewFile(cfg.Path), nil
	case DriverSQLite, DriverPostgres, DriverMySQL:
		db, err := OpenDB(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewGorm(db)
	case DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedis(rdb, cfg.Redis.Prefix, cfg.Redis.TTL.Std()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}
