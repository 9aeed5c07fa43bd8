package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"ms-rental/internal/auth"
	"ms-rental/internal/catalog"
	catalogdb "ms-rental/internal/catalog/db"
	"ms-rental/internal/config"
	"ms-rental/internal/database"
	"ms-rental/internal/database/migrations"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"

	"github.com/joho/godotenv"
)

var demoUsers = []struct {
	id   string
	role models.Role
}{
	{"customer-demo", models.RoleCustomer},
	{"seller-demo", models.RoleSeller},
	{"admin-demo", models.RoleAdmin},
}

// seed migrates the schema with the demo cars, optionally upserts more cars
// from a YAML file and prints demo tokens.
func main() {
	carsFile := flag.String("cars", "", "YAML file of extra cars to upsert")
	tokens := flag.Bool("tokens", true, "print demo bearer tokens")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of printed tokens")
	reset := flag.Bool("reset", false, "drop every table before migrating")
	unseed := flag.Bool("unseed", false, "remove the demo cars and exit")
	flag.Parse()

	logger := logger.NewLogger("seed")
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}
	ctx := context.Background()

	sqldb, err := database.OpenPostgres(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	runner := migrations.NewRunner(sqldb, migrations.MigrateOptions{AutoMigrate: true, SeedData: true}, logger)
	if err := runner.Initialize(); err != nil {
		logger.Fatal("MIGRATION", err.Error())
	}
	if *unseed {
		if err := runner.MigrateTo(migrations.SchemaVersion); err != nil {
			logger.Fatal("MIGRATION", err.Error())
		}
		runner.Close()
		logger.Info("SEED", "Demo cars removed")
		return
	}
	if *reset {
		logger.Warn("MIGRATION", "Dropping all tables")
		if err := runner.MigrateDown(); err != nil {
			logger.Fatal("MIGRATION", err.Error())
		}
	}
	if err := runner.RunMigrations(); err != nil {
		logger.Fatal("MIGRATION", err.Error())
	}
	runner.Close()

	if *carsFile != "" {
		f, err := os.Open(*carsFile)
		if err != nil {
			logger.Fatal("SEED", err.Error())
		}
		cars, err := catalog.LoadCars(f)
		f.Close()
		if err != nil {
			logger.Fatal("SEED", err.Error())
		}

		bunDB, err := database.ConnectPostgres(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("DATABASE", err.Error())
		}
		defer bunDB.Close()

		var cache catalog.CarCache
		if rdb, err := database.ConnectRedis(ctx, cfg.Redis, logger); err != nil {
			logger.Warn("REDIS", "cached cars will expire on their own: "+err.Error())
		} else {
			defer rdb.Close()
			cache = catalog.NewRedisCarCache(rdb, 0)
		}

		if err := catalog.NewService(&catalogdb.DB{Bun: bunDB}, cache, logger).SaveCars(ctx, cars); err != nil {
			logger.Fatal("SEED", err.Error())
		}
		logger.Info("SEED", fmt.Sprintf("Upserted %d cars from %s", len(cars), *carsFile))
	}

	if !*tokens {
		return
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("SEED", "JWT_SECRET not set, skipping demo tokens")
		return
	}
	for _, u := range demoUsers {
		tok, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, u.id, u.role, *tokenTTL)
		if err != nil {
			logger.Fatal("AUTH", err.Error())
		}
		fmt.Printf("%-8s %-14s %s\n", u.role, u.id, tok)
	}
}
