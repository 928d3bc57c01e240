package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/api"
	"github.com/contagem-app/contagem/internal/auth"
	"github.com/contagem-app/contagem/internal/cache"
	"github.com/contagem-app/contagem/internal/catalog"
	"github.com/contagem-app/contagem/internal/config"
	"github.com/contagem-app/contagem/internal/db"
	"github.com/contagem-app/contagem/internal/model"
	"github.com/contagem-app/contagem/internal/store"
)

// initialCodeLength is the length of the admin unlock code printed on first run.
const initialCodeLength = 6

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. If logPath is non-empty, all
// levels are also appended to that file. The returned cleanup closes it.
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	cleanup := func() {}
	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	slog.SetDefault(slog.New(&levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}))
	return cleanup, nil
}

func main() {
	cfg, err := config.Load(os.Args[1:], os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		slog.Error("fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	if _, err := os.Stat(cfg.DBPath); errors.Is(err, os.ErrNotExist) {
		code, err := initDatabase(ctx, cfg.DBPath, cfg.AdminName)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		printInitResult(cfg.DBPath, cfg.AdminName, code)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	owner, err := store.GetUser(ctx, database, cfg.CatalogOwnerID)
	if err != nil {
		return fmt.Errorf("loading catalog owner: %w", err)
	}
	if owner == nil {
		slog.Warn("catalog owner does not exist yet, imports will fail until it is created",
			"catalog_owner_id", cfg.CatalogOwnerID)
	}

	// A nil *ProductCache must not reach the Cache interface.
	var productCache catalog.Cache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rc.Close()
		productCache = cache.NewProductCache(rc, cfg.Redis.TTL)
		slog.Info("catalog cache enabled", "redis", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	}

	cat := catalog.New(database, cfg.CatalogOwnerID, productCache)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(database, jwtSecret, cat)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "catalog_owner_id", cfg.CatalogOwnerID)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// initDatabase creates a new database with the schema and an admin user,
// returning the admin's unlock code. A failed init removes the file.
func initDatabase(ctx context.Context, path, adminName string) (code string, err error) {
	database, err := db.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		database.Close()
		if err != nil {
			os.Remove(path)
		}
	}()

	if err := db.Migrate(database); err != nil {
		return "", err
	}
	return createAdmin(ctx, database, adminName)
}

func createAdmin(ctx context.Context, database *sqlx.DB, name string) (string, error) {
	code, err := auth.GenerateCode(initialCodeLength)
	if err != nil {
		return "", fmt.Errorf("generating unlock code: %w", err)
	}
	hash, err := auth.HashCode(code)
	if err != nil {
		return "", fmt.Errorf("hashing unlock code: %w", err)
	}
	if _, err := store.CreateUser(ctx, database, name, hash, model.RoleAdmin); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return code, nil
}

func printInitResult(dbPath, name, code string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Name:        %s\n", name)
	fmt.Printf("  Unlock code: %s\n", code)
	fmt.Println()
	fmt.Println("Save this code now. It is not stored in readable form.")
	fmt.Println("Another admin can reset it from the user management API.")
	fmt.Println()
}
