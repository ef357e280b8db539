// Command fetch-markets discovers tradeable binary markets from the
// gamma API and upserts them into storage for the arbitrage engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"auction-market-bot/config"
	"auction-market-bot/internal/database"
	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/polymarket"
)

func main() {
	var (
		categoriesCSV = flag.String("categories", "", "comma separated category filter, empty keeps all")
		timeout       = flag.Duration("timeout", 2*time.Minute, "overall fetch deadline")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})

	categories := cfg.ArbitrageConfig.Categories
	if *categoriesCSV != "" {
		categories = categories[:0]
		for _, c := range strings.Split(*categoriesCSV, ",") {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		DBName:   cfg.DatabaseConfig.DBName,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}
	repo := database.NewRepository(db)

	fetcher := polymarket.NewFetcher(cfg.ArbitrageConfig.GammaURL, categories, repo)
	stored, err := fetcher.FetchAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "market discovery failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Stored %d binary markets", stored)
	if len(categories) > 0 {
		fmt.Printf(" (categories: %s)", strings.Join(categories, ", "))
	}
	fmt.Println()
}
