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
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/venuewatch/pkg/ux"
	"github.com/AleutianAI/venuewatch/pkg/validation"
	"github.com/AleutianAI/venuewatch/services/presence/export"
	"github.com/AleutianAI/venuewatch/services/presence/resample"
	"github.com/AleutianAI/venuewatch/services/presence/storage"
)

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Copy every day file into the badger store",
		Long: `Reads every day file under log_dir and writes its snapshots into the
badger store configured under badger.path. Snapshots already in the store
at the same instant are replaced, so importing twice is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			src, err := c.openFiles()
			if err != nil {
				return err
			}
			defer src.Close()
			dst, err := c.openBadger()
			if err != nil {
				return err
			}
			defer dst.Close()

			start := time.Now()
			n, err := storage.Copy(ctx, dst, src)
			if err != nil {
				return fmt.Errorf("import stopped after %d snapshots: %w", n, err)
			}
			dates, err := dst.Dates(ctx)
			if err != nil {
				return err
			}
			c.printer.Success(fmt.Sprintf("imported %s into %s in %s", c.cfg.LogDir, c.cfg.Badger.Path, time.Since(start).Round(time.Millisecond)))
			c.printer.Summary(ux.Count{Name: "snapshots", Value: n}, ux.Count{Name: "days", Value: len(dates)})
			return nil
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		profile   bool
		reduction string
		weekday   string
		anchor    string
	)
	cmd := &cobra.Command{
		Use:   "export [DATE...]",
		Short: "Write headcounts and presence to InfluxDB",
		Long: `Writes the headcount and per-player presence series of the given days
(all days when none are given) to the InfluxDB bucket under influx.
With --profile, also writes the headcount profile as one day of points
anchored at --anchor (default: today, UTC).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			dates := make([]civil.Date, len(args))
			for i, a := range args {
				d, err := validation.ParseDate(a)
				if err != nil {
					return err
				}
				dates[i] = d
			}
			r, err := resample.ParseReduction(reduction)
			if err != nil {
				return err
			}
			var wd *time.Weekday
			if weekday != "" {
				parsed, err := validation.ParseWeekday(weekday)
				if err != nil {
					return err
				}
				wd = &parsed
			}
			anchorDate := civil.DateOf(time.Now().UTC())
			if anchor != "" {
				if anchorDate, err = validation.ParseDate(anchor); err != nil {
					return err
				}
			}

			cat, err := c.openCatalog(ctx)
			if err != nil {
				return err
			}
			if len(dates) == 0 {
				dates = cat.Dates()
			}

			client, err := export.Dial(ctx, &c.cfg.Influx)
			if err != nil {
				return err
			}
			defer client.Close()
			exp := export.NewExporter(client.Writer(), c.logger.Slog().With("component", "export"))

			sum, err := exp.ExportDays(ctx, cat, dates)
			if err != nil {
				return err
			}
			if profile {
				ps, err := exp.ExportProfile(ctx, cat, r, wd, anchorDate)
				if err != nil {
					return err
				}
				sum.ProfilePoints = ps.ProfilePoints
			}
			if sum.SkippedIDs > 0 {
				c.printer.Warning(fmt.Sprintf("%d identities had ids unusable as tags and were left out", sum.SkippedIDs))
			}
			c.printer.Success(fmt.Sprintf("exported to %s/%s", c.cfg.Influx.Org, c.cfg.Influx.Bucket))
			c.printer.Summary(
				ux.Count{Name: "days", Value: sum.Days},
				ux.Count{Name: "points", Value: sum.Points},
				ux.Count{Name: "profile_points", Value: sum.ProfilePoints},
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&profile, "profile", false, "also export the headcount profile")
	cmd.Flags().StringVarP(&reduction, "reduction", "r", resample.Average.String(), "profile reduction")
	cmd.Flags().StringVar(&weekday, "weekday", "", "profile weekday filter")
	cmd.Flags().StringVar(&anchor, "anchor", "", "date the profile points are written on (YYYY-MM-DD)")
	return cmd
}
