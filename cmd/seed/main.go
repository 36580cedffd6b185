package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"celestia/internal/config"
	"celestia/internal/database"
	"celestia/internal/models"
	"celestia/internal/repository"
	"celestia/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type rosterFile struct {
	Staff []models.StaffMember `yaml:"staff"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		staffPath  = flag.String("staff", "", "optional YAML roster; the built-in roster is used when empty")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	roster := models.DefaultStaffRoster()
	if *staffPath != "" {
		if roster, err = loadRoster(*staffPath); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	availability := service.NewAvailabilityService(db, &logger)
	if err := availability.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seed availability: %w", err)
	}

	users := service.NewUserService(db, repository.NewMemoryStateRepository(), nil, &logger)
	added, err := users.SeedStaffRoster(ctx, roster)
	if err != nil {
		return fmt.Errorf("seed staff: %w", err)
	}

	logger.Info().Int("staff_added", added).Str("db", cfg.Database.Path).Msg("seed complete")
	return nil
}

func loadRoster(path string) ([]models.StaffMember, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(file.Staff) == 0 {
		return nil, fmt.Errorf("roster %s lists no staff", path)
	}
	return file.Staff, nil
}
