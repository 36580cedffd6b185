package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"celestia/internal/api"
	"celestia/internal/config"
	"celestia/internal/database"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		userID     = flag.String("user", "", "user id to issue the token for")
	)
	flag.Parse()

	if *userID == "" {
		return fmt.Errorf("-user is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.Nop()
	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	user, err := db.GetUser(context.Background(), *userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	token, err := api.NewTokenIssuer(cfg.API.Auth).Issue(user.ID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintf(os.Stderr, "token for %s (%s, approved=%t)\n", user.Name, user.Role, user.Approved)
	fmt.Println(token)
	return nil
}
