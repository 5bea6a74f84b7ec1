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
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/venuewatch/pkg/ux"
	"github.com/AleutianAI/venuewatch/pkg/validation"
	"github.com/AleutianAI/venuewatch/services/presence/catalog"
	"github.com/AleutianAI/venuewatch/services/presence/resample"
)

const barWidth = 30

func (c *cli) daysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "days",
		Short: "List the recorded days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := c.openCatalog(commandContext(cmd))
			if err != nil {
				return err
			}
			rows := [][]string{}
			samples := 0
			for _, d := range cat.Dates() {
				l, err := cat.Log(d)
				if err != nil {
					return err
				}
				samples += l.Len()
				rows = append(rows, []string{d.String(), catalog.Weekday(d).String(), strconv.Itoa(l.Len())})
			}
			c.printer.Title("Recorded days")
			c.printer.Table([]string{"date", "weekday", "samples"}, rows)
			c.printer.Summary(ux.Count{Name: "days", Value: len(rows)}, ux.Count{Name: "samples", Value: samples})
			return nil
		},
	}
}

func (c *cli) headcountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "headcount DATE",
		Short: "Show the inferred headcount at every sample of one day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := validation.ParseDate(args[0])
			if err != nil {
				return err
			}
			cat, err := c.openCatalog(commandContext(cmd))
			if err != nil {
				return err
			}
			counts, err := cat.HeadcountsOn(commandContext(cmd), date)
			if err != nil {
				return err
			}

			peak := 0
			for _, tc := range counts {
				peak = max(peak, tc.Count)
			}
			rows := make([][]string, len(counts))
			for i, tc := range counts {
				rows[i] = []string{tc.Time.Format(time.TimeOnly), strconv.Itoa(tc.Count), c.printer.Bar(float64(tc.Count), float64(peak), barWidth)}
			}
			c.printer.Title(fmt.Sprintf("Headcount on %s (%s)", date, catalog.Weekday(date)))
			c.printer.Table(withBar([]string{"time", "count"}, c.printer), trimBar(rows, c.printer))
			c.printer.Summary(ux.Count{Name: "samples", Value: len(counts)}, ux.Count{Name: "peak", Value: peak})
			return nil
		},
	}
}

func (c *cli) profileCmd() *cobra.Command {
	var (
		reduction string
		weekday   string
		skipZero  bool
	)
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the typical headcount by time of day",
		Long: `Resamples every day's headcount onto the time-of-day grid and
combines the days with --reduction (sum, average, median or max).
--weekday restricts the days to one weekday (a name, or 0-6 with 0 = Sunday).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			cat, err := c.openCatalog(commandContext(cmd))
			if err != nil {
				return err
			}
			p, err := cat.HeadcountProfile(commandContext(cmd), r, wd)
			if err != nil {
				return err
			}
			title := fmt.Sprintf("Headcount profile (%s)", r)
			if wd != nil {
				title = fmt.Sprintf("Headcount profile (%s, %ss)", r, wd)
			}
			c.printer.Title(title)
			c.printProfile(p, skipZero)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reduction, "reduction", "r", resample.Average.String(), "sum, average, median or max")
	cmd.Flags().StringVar(&weekday, "weekday", "", "only include this weekday")
	cmd.Flags().BoolVar(&skipZero, "skip-zero", false, "leave out zero-valued points")
	return cmd
}

func (c *cli) playersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "players",
		Short: "List every identity seen in any day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := c.openCatalog(commandContext(cmd))
			if err != nil {
				return err
			}
			ids := cat.Identities(commandContext(cmd))
			rows := make([][]string, len(ids))
			for i, id := range ids {
				rows[i] = []string{id.ID, id.Name}
			}
			c.printer.Title("Players")
			c.printer.Table([]string{"id", "name"}, rows)
			c.printer.Summary(ux.Count{Name: "players", Value: len(ids)})
			return nil
		},
	}
}

func (c *cli) playtimeCmd() *cobra.Command {
	var skipZero bool
	cmd := &cobra.Command{
		Use:   "playtime ID",
		Short: "Show how many days a player was present at each time of day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := validation.SanitizeIdentityID(args[0])
			if err != nil {
				return err
			}
			cat, err := c.openCatalog(commandContext(cmd))
			if err != nil {
				return err
			}
			p, err := cat.Playtime(commandContext(cmd), id)
			if err != nil {
				return err
			}
			c.printer.Title(fmt.Sprintf("Playtime of %s", id))
			c.printProfile(p, skipZero)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipZero, "skip-zero", false, "leave out zero-valued points")
	return cmd
}

func (c *cli) playdatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "playdates ID",
		Short: "List the days a player was confirmed present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := validation.SanitizeIdentityID(args[0])
			if err != nil {
				return err
			}
			cat, err := c.openCatalog(commandContext(cmd))
			if err != nil {
				return err
			}
			dates, err := cat.PlayDates(commandContext(cmd), id)
			if err != nil {
				return err
			}
			rows := make([][]string, len(dates))
			for i, d := range dates {
				rows[i] = []string{d.String(), catalog.Weekday(d).String()}
			}
			c.printer.Title(fmt.Sprintf("Days %s played", id))
			c.printer.Table([]string{"date", "weekday"}, rows)
			c.printer.Summary(ux.Count{Name: "days", Value: len(dates)})
			return nil
		},
	}
}

// printProfile prints one row per grid point with a bar scaled to the
// profile's maximum.
func (c *cli) printProfile(p resample.Profile, skipZero bool) {
	peak := 0.0
	for _, pt := range p {
		peak = max(peak, pt.Value)
	}
	rows := make([][]string, 0, len(p))
	for _, pt := range p {
		if skipZero && pt.Value == 0 {
			continue
		}
		rows = append(rows, []string{
			timeOfDay(pt.Offset),
			strconv.FormatFloat(pt.Value, 'f', -1, 64),
			c.printer.Bar(pt.Value, peak, barWidth),
		})
	}
	c.printer.Table(withBar([]string{"time", "value"}, c.printer), trimBar(rows, c.printer))
}

// timeOfDay formats a grid offset as HH:MM.
func timeOfDay(offset time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(offset/time.Hour), int(offset%time.Hour/time.Minute))
}

// withBar adds the bar column header when the printer draws bars.
func withBar(headers []string, p *ux.Printer) []string {
	if p.Level() == ux.PersonalityMachine {
		return headers
	}
	return append(headers, "")
}

// trimBar drops the trailing bar cell from machine output rows.
func trimBar(rows [][]string, p *ux.Printer) [][]string {
	if p.Level() != ux.PersonalityMachine {
		return rows
	}
	for i, row := range rows {
		rows[i] = row[:len(row)-1]
	}
	return rows
}
