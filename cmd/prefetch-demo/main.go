// Command prefetch-demo seeds a small table and resolves overlapping id lists
// through per-unit-of-work prefetch stores, logging what each unit cost.
//
// Configuration is read from the environment with the PREFETCH prefix, e.g.
// PREFETCH_DRIVER=postgres PREFETCH_DSN=postgres://... PREFETCH_STORE_TRAINING=true.
// A .env file in the working directory is loaded first when present.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-repository-prefetch/internal/logging"
	"github.com/goliatone/go-repository-prefetch/loader"
	"github.com/goliatone/go-repository-prefetch/pkg/di"
	"github.com/goliatone/go-repository-prefetch/prefetch"
)

const appName = "PREFETCH"

type Config struct {
	Driver   string          `envconfig:"DRIVER" default:"sqlite3"`
	DSN      string          `envconfig:"DSN" default:":memory:"`
	LogLevel string          `envconfig:"LOG_LEVEL" default:"info"`
	Store    prefetch.Flags  `envconfig:"STORE"`
}

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID   int64  `bun:"id,pk"`
	Name string `bun:"name,notnull"`
}

func main() {
	envErr := godotenv.Load()

	var cfg Config
	if err := envconfig.Process(appName, &cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	reportEnvFile(logger, envErr)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

// reportEnvFile logs the outcome of loading .env. A missing file is the
// normal case outside local development.
func reportEnvFile(logger *slog.Logger, err error) {
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("no .env file, using environment")
	default:
		logger.Warn("failed to load .env", "error", err)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	db, err := openDB(cfg.Driver, cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := seed(ctx, db); err != nil {
		return err
	}

	authors, err := loader.NewBunLoader[Author](db)
	if err != nil {
		return err
	}

	container, err := di.NewContainer(di.Config{Prefetch: prefetch.NewConfig(cfg.Store)}, logger)
	if err != nil {
		return err
	}

	units := [][]any{
		{1, 2, 2, 3, 42},
		{3, 4, 5, 42},
	}
	for _, ids := range units {
		if err := runUnit(ctx, container, authors, ids, logger); err != nil {
			return err
		}
	}
	return nil
}

// runUnit resolves ids twice in the same unit of work. The second pass must be
// answered from the store alone.
func runUnit(ctx context.Context, c *di.Container, authors *loader.BunLoader[Author], ids []any, logger *slog.Logger) error {
	ctx, unit := c.Begin(ctx)
	defer c.End(unit)

	store, _ := prefetch.FromContext(ctx)
	for pass := 1; pass <= 2; pass++ {
		rows, err := authors.Find(ctx, store, ids...)
		if err != nil {
			return err
		}
		logger.Info("resolved authors",
			"unit", unit,
			"pass", pass,
			"requested", len(ids),
			"found", len(rows),
			"slots", store.Len(authors.Namespace()),
			"size", store.Size(),
		)
	}
	return nil
}

func openDB(driver, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	switch driver {
	case "sqlite3":
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case "postgres":
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		sqldb.Close()
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func seed(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*Author)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create authors: %w", err)
	}

	authors := []Author{
		{ID: 1, Name: "Ursula K. Le Guin"},
		{ID: 2, Name: "Italo Calvino"},
		{ID: 3, Name: "Jorge Luis Borges"},
		{ID: 4, Name: "Olga Tokarczuk"},
		{ID: 5, Name: "Stanislaw Lem"},
	}
	_, err := db.NewInsert().Model(&authors).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("seed authors: %w", err)
	}
	return nil
}
