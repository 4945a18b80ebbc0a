package buildCFG

import (
	"fmt"
	"time"

	cleanenvport "github.com/wb-go/wbf/config/cleanenv-port"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/redis"
)

type ConfServer struct {
	Host    string `env:"SERVICE_HOST_NAME" env-default:"0.0.0.0"`
	Port    int    `env:"SERVICE_PORT" env-default:"8080"`
	GinMode string `env:"GIN_MODE"     env-default:"debug"`
}

type ConfDB struct {
	Host            string        `env:"DB_HOST_NAME"         env-default:"localhost"`
	Port            int           `env:"DB_PORT"              env-default:"5432"`
	Name            string        `env:"DB_NAME"              env-default:"redirects"`
	User            string        `env:"DB_USER"              env-default:"postgres"`
	Password        string        `env:"DB_PASSWORD"          env-default:"postgres"`
	SSLMode         string        `env:"DB_SSL_MODE"          env-default:"disable"`
	MaxConns        int           `env:"DB_MAX_CONNS"         env-default:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS"    env-default:"5"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" env-default:"5m"`
}

type ConfRedis struct {
	Host      string        `env:"REDIS_HOST_NAME"  env-default:"localhost"`
	Port      int           `env:"REDIS_PORT"       env-default:"6379"`
	Password  string        `env:"REDIS_PASSWORD"   env-default:""`
	TTL       time.Duration `env:"REDIS_TTL"        env-default:"600s"`
	MaxMemory string        `env:"REDIS_MAX_MEMORY" env-default:"100mb"`
	Policy    string        `env:"REDIS_POLICY"     env-default:"allkeys-lru"`
}

type ConfGeo struct {
	BaseURL string        `env:"GEOIP_BASE_URL" env-default:"http://ip-api.com"`
	Timeout time.Duration `env:"GEOIP_TIMEOUT"  env-default:"2s"`
}

type Config struct {
	Server ConfServer
	DB     ConfDB
	Redis  ConfRedis
	Geo    ConfGeo
}

// ReadConfig loads ./.env into the config structure. Missing file is not an
// error in itself, defaults and the process environment still apply.
func ReadConfig() (*Config, error) {
	var config Config
	if err := cleanenvport.LoadPath("./.env", &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *ConfServer) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ConfDB) MasterDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

func (c *ConfDB) Options() *dbpg.Options {
	return &dbpg.Options{
		MaxOpenConns:    c.MaxConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.MaxConnLifetime,
	}
}

func (c *ConfRedis) Options() redis.Options {
	return redis.Options{
		Address:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password:  c.Password,
		MaxMemory: c.MaxMemory,
		Policy:    c.Policy,
	}
}
