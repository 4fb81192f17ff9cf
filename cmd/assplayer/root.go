// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ManuGH/assplayer/internal/config"
	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/ManuGH/assplayer/internal/version"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "assplayer",
		Short:         "Resolve video page links to direct playable media URLs",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate(version.String() + "\n")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c",
		config.ParseString("ASS_CONFIG", ""), "path to config file (YAML)")

	cmd.AddCommand(
		newServeCmd(opts),
		newResolveCmd(opts),
		newStorageCmd(),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig applies ENV > file > defaults and configures the global logger
// to write to logOut.
func loadConfig(opts *rootOptions, logOut io.Writer) (config.AppConfig, *config.Loader, error) {
	xglog.Configure(xglog.Config{Level: "info", Output: logOut, Service: "assplayer", Version: version.Version})

	loader := config.NewLoader(strings.TrimSpace(opts.configPath), version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return config.AppConfig{}, nil, fmt.Errorf("load config: %w", err)
	}
	xglog.Configure(xglog.Config{Level: cfg.Log.Level, Output: logOut, Service: "assplayer", Version: cfg.Version})

	logger := xglog.WithComponent("cli")
	if path := loader.Path(); path != "" {
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "file").
			Str("path", path).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}
	return cfg, loader, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
