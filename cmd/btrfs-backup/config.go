package main

import (
	"github.com/fgeck/btrfs-backup/internal/config"
	"github.com/fgeck/btrfs-backup/internal/models"
	gohomedir "github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog/log"
)

// loadConfig loads and validates the configuration for the invoking user.
func loadConfig() (*models.Config, error) {
	home, err := gohomedir.Dir()
	if err != nil {
		// An explicit --config with an absolute snapshots_dir works without a home.
		log.Warn().Err(err).Msg("cannot determine home directory")
		home = ""
	}

	parser := config.NewParser()
	cfg, err := parser.Load(home, configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	for _, w := range parser.Warnings() {
		log.Warn().Msg(w)
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	return cfg, nil
}
