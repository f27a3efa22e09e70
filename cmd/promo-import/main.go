// Command promo-import loads gzip NDJSON exports of promotions, users and
// orders into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"go.uber.org/zap"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory containing promotions/users/orders.ndjson.gz")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent upserts")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL, workers); err != nil {
		lg.Fatal("Import failed", zap.Error(err))
	}
	lg.Info("Import completed")
}
