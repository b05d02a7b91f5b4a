package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/database"
	"github.com/drivetheory/theory-backend/internal/logger"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/drivetheory/theory-backend/internal/repository"
	"github.com/drivetheory/theory-backend/internal/service"
	"github.com/drivetheory/theory-backend/internal/validator"
)

// seedFile is one exam definition on disk. Status defaults to PUBLISHED.
type seedFile struct {
	model.ExamDefinition
	Status model.ExamStatus `json:"status" validate:"omitempty,oneof=DRAFT PUBLISHED ARCHIVED"`
}

func main() {
	var dir string
	flag.StringVar(&dir, "dir", "seed/exams", "Directory of exam definition JSON files")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examService := service.NewExamService(repository.NewExamRepository(pool), rdb, cfg.ExamCacheTTL, log)

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid seed directory")
	}
	sort.Strings(files)

	fmt.Printf("=== Seeding %d exams from %s ===\n", len(files), dir)

	successCount := 0
	for _, path := range files {
		seed, err := readSeed(path)
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", filepath.Base(path), err)
			continue
		}
		if fields := validator.Struct(seed); fields != nil {
			fmt.Printf("Skipping %s: invalid definition\n", filepath.Base(path))
			for field, msg := range fields {
				fmt.Printf("  %s: %s\n", field, msg)
			}
			continue
		}

		status := seed.Status
		if status == "" {
			status = model.ExamStatusPublished
		}
		if err := examService.Import(ctx, &seed.ExamDefinition, status); err != nil {
			fmt.Printf("Error importing %s: %v\n", filepath.Base(path), err)
			continue
		}

		successCount++
		fmt.Printf("Imported %q (%s, %d questions) as %s\n",
			seed.Title, seed.ID, len(seed.Questions), status)
	}

	fmt.Printf("\nSeed completed! Successfully imported %d/%d exams.\n", successCount, len(files))
}

func readSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &seed, nil
}
