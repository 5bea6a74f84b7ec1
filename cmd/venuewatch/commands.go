// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/venuewatch/pkg/logging"
	"github.com/AleutianAI/venuewatch/pkg/ux"
	"github.com/AleutianAI/venuewatch/services/presence/analysis"
	"github.com/AleutianAI/venuewatch/services/presence/catalog"
	"github.com/AleutianAI/venuewatch/services/presence/config"
	"github.com/AleutianAI/venuewatch/services/presence/resample"
	"github.com/AleutianAI/venuewatch/services/presence/storage"
	badgerstore "github.com/AleutianAI/venuewatch/services/presence/storage/badger"
	"github.com/AleutianAI/venuewatch/services/presence/storage/jsonl"
)

// Store names accepted by --store.
const (
	storeFiles  = "files"
	storeBadger = "badger"
)

// cli holds the flags and everything PersistentPreRunE builds from them.
type cli struct {
	configPath string
	dataDir    string
	logLevel   string
	output     string
	store      string

	cfg     config.Config
	logger  *logging.Logger
	printer *ux.Printer
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:   "venuewatch",
		Short: "Infer who was at the venue from recorded leaderboard snapshots",
		Long: `venuewatch reads the day files written by the leaderboard recorder,
infers when each player was present, and answers attendance questions:
headcounts over a day, typical headcount by time of day, a player's usual
hours and the days they played.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  c.setup,
		PersistentPostRunE: c.teardown,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", os.Getenv("VENUEWATCH_CONFIG"), "path to venuewatch.yaml")
	flags.StringVarP(&c.dataDir, "dir", "d", "", "day file directory (overrides log_dir)")
	flags.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVarP(&c.output, "output", "o", "auto", "auto, standard, minimal or machine")
	flags.StringVar(&c.store, "store", storeFiles, "where queries read days from: files or badger")

	rootCmd.AddCommand(
		c.serveCmd(),
		c.daysCmd(),
		c.headcountCmd(),
		c.profileCmd(),
		c.playersCmd(),
		c.playtimeCmd(),
		c.playdatesCmd(),
		c.importCmd(),
		c.exportCmd(),
		c.configCmd(),
	)
	return rootCmd
}

// setup loads configuration and builds the logger and printer.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.dataDir != "" {
		cfg.LogDir = c.dataDir
	}
	if c.store != storeFiles && c.store != storeBadger {
		return fmt.Errorf("unknown store %q (want %s or %s)", c.store, storeFiles, storeBadger)
	}

	logCfg := cfg.Logging
	logCfg.Output = cmd.ErrOrStderr()
	switch {
	case c.logLevel != "":
		level, err := logging.ParseLevel(c.logLevel)
		if err != nil {
			return err
		}
		logCfg.Level = level
	case cmd.Name() != "serve":
		// One-shot commands print their result; progress logs would
		// interleave with it.
		logCfg.Level = logging.LevelWarn
	}
	cfg.Logging = logCfg

	c.cfg = cfg
	c.logger = logging.New(logCfg)
	c.printer = ux.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), c.outputLevel(cmd))
	return nil
}

func (c *cli) teardown(*cobra.Command, []string) error {
	if c.logger != nil {
		return c.logger.Close()
	}
	return nil
}

func (c *cli) outputLevel(cmd *cobra.Command) ux.PersonalityLevel {
	if c.output != "" && c.output != "auto" {
		return ux.ParsePersonalityLevel(c.output)
	}
	f, _ := cmd.OutOrStdout().(*os.File)
	return ux.DetectLevel(f)
}

// openFiles opens the day file directory.
func (c *cli) openFiles() (*jsonl.Store, error) {
	return jsonl.Open(c.cfg.LogDir)
}

// openBadger opens the configured badger store.
func (c *cli) openBadger() (*badgerstore.Store, error) {
	if !c.cfg.Badger.Enabled() {
		return nil, fmt.Errorf("badger store not configured (set badger.path)")
	}
	bcfg := badgerstore.DefaultConfig(c.cfg.Badger.Path)
	bcfg.InMemory = c.cfg.Badger.InMemory
	bcfg.Logger = c.logger.Slog().With("component", "badger")
	return badgerstore.Open(bcfg)
}

// openCatalog loads every day from the --store source into a new catalog.
// Days that fail to load are reported and left out.
func (c *cli) openCatalog(ctx context.Context) (*catalog.Catalog, error) {
	grid, err := resample.NewGrid(c.cfg.Analysis.Tick)
	if err != nil {
		return nil, err
	}
	cat := catalog.New(
		analysis.New(c.cfg.AnalyzerConfig()),
		grid,
		catalog.WithWorkers(c.cfg.Analysis.Workers),
		catalog.WithLogger(c.logger.Slog().With("component", "catalog")),
	)

	var repo storage.Repository
	if c.store == storeBadger {
		repo, err = c.openBadger()
	} else {
		repo, err = c.openFiles()
	}
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	res, err := cat.Reload(ctx, repo)
	if err != nil {
		return nil, err
	}
	for _, d := range res.Skipped {
		c.printer.Warning(fmt.Sprintf("skipped unreadable day %s", d))
	}
	return cat, nil
}
