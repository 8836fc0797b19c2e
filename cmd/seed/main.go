package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/certeval-api/internal/config"
	"github.com/noah-isme/certeval-api/internal/database"
	"github.com/noah-isme/certeval-api/internal/repository"
	"github.com/noah-isme/certeval-api/internal/service"
)

// Loads a catalog document into the database. The file comes from the first
// argument or CERTEVAL_SEED_FILE.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	path := cfg.SeedFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		log.Fatal("usage: seed <catalog.json> (or set CERTEVAL_SEED_FILE)")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	document, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to read catalog %s: %v", path, err)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	seeder, err := service.NewSeedService(repository.NewCatalogRepository(db), false, "", logger)
	if err != nil {
		log.Fatalf("failed to build seed service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	summary, err := seeder.LoadCatalog(ctx, document)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}

	for _, warning := range summary.Warnings {
		logger.Warn().Msg(warning)
	}
	logger.Info().
		Int("departments", summary.Departments).
		Int("knowledge", summary.Knowledge).
		Int("skills", summary.Skills).
		Int("questions", summary.Questions).
		Int("templates", summary.Templates).
		Int("users", summary.Users).
		Msg("catalog loaded")
}
