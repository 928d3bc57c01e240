// Package config loads runtime settings from flags, the environment and an
// optional .env file. Flags win over the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server configuration.
type Config struct {
	DBPath         string
	Addr           string
	AdminName      string
	LogPath        string
	CatalogOwnerID int64

	Redis RedisConfig
}

// RedisConfig configures the optional catalog lookup cache. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

const usage = `Usage: contagem [flags]

Flags:
  -d, -db <path>             SQLite database path (env DB_PATH, default: contagem.sqlite3)
  -a, -addr <host:port>      listen address (env ADDR, default: :8080)
  -u, -user <name>           admin name on first run (env ADMIN_NAME, default: Admin)
  -l, -log <path>            log file path (env LOG_PATH, default: stdout/stderr only)
  -c, -catalog-owner <id>    user id owning the product catalog (env CATALOG_OWNER_ID, default: 1)
  -redis <host:port>         Redis address for the catalog cache (env REDIS_ADDR, default: disabled)
  -h, -help                  show this help and exit

Environment only:
  REDIS_PASSWORD, REDIS_DB, CATALOG_CACHE_TTL (e.g. 10m)
`

// Load parses args (without the program name). Values in a .env file in the
// working directory are added to the environment first, without overriding
// variables that are already set. Load returns flag.ErrHelp after printing
// usage to out when -h is given.
func Load(args []string, out io.Writer) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}

	ownerID, err := getEnvInt64("CATALOG_OWNER_ID", 1)
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvInt64("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	ttl, err := getEnvDuration("CATALOG_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("contagem", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }

	stringFlag(fs, &cfg.DBPath, getEnv("DB_PATH", "contagem.sqlite3"), "db", "d")
	stringFlag(fs, &cfg.Addr, getEnv("ADDR", ":8080"), "addr", "a")
	stringFlag(fs, &cfg.AdminName, getEnv("ADMIN_NAME", "Admin"), "user", "u")
	stringFlag(fs, &cfg.LogPath, getEnv("LOG_PATH", ""), "log", "l")
	fs.Int64Var(&cfg.CatalogOwnerID, "catalog-owner", ownerID, "")
	fs.Int64Var(&cfg.CatalogOwnerID, "c", ownerID, "")
	fs.StringVar(&cfg.Redis.Addr, "redis", getEnv("REDIS_ADDR", ""), "")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = int(redisDB)
	cfg.Redis.TTL = ttl

	if cfg.CatalogOwnerID <= 0 {
		return nil, fmt.Errorf("catalog owner id must be positive, got %d", cfg.CatalogOwnerID)
	}
	if cfg.DBPath == "" {
		return nil, errors.New("database path must not be empty")
	}
	return cfg, nil
}

func stringFlag(fs *flag.FlagSet, p *string, def string, names ...string) {
	for _, name := range names {
		fs.StringVar(p, name, def, "")
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
