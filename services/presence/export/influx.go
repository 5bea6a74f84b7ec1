// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes analysed presence data to InfluxDB.
//
// # Measurements
//
//	headcount          time = sample time          field count
//	presence           time = sample time          tags identity_id, name; field present (0/1)
//	headcount_profile  time = anchor date + offset tags reduction, weekday; field value
//
// Points are written through the blocking write API so a failed export is
// reported to the caller instead of being retried in the background.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/awnumar/memguard"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/venuewatch/pkg/validation"
	"github.com/AleutianAI/venuewatch/services/presence/analysis"
	"github.com/AleutianAI/venuewatch/services/presence/catalog"
	"github.com/AleutianAI/venuewatch/services/presence/config"
	"github.com/AleutianAI/venuewatch/services/presence/resample"
)

const (
	MeasurementHeadcount = "headcount"
	MeasurementPresence  = "presence"
	MeasurementProfile   = "headcount_profile"
)

// DefaultBatchSize is the number of points sent per write call.
const DefaultBatchSize = 5000

// ErrNotConfigured is returned by Dial when no InfluxDB URL is set.
var ErrNotConfigured = errors.New("export: influx url not configured")

// PointWriter is the part of api.WriteAPIBlocking the exporter needs.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Exporter converts catalog results to points and writes them.
type Exporter struct {
	writer    PointWriter
	logger    *slog.Logger
	batchSize int
}

// NewExporter creates an exporter writing to w.
func NewExporter(w PointWriter, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{writer: w, logger: logger, batchSize: DefaultBatchSize}
}

// Summary counts what an export wrote.
type Summary struct {
	Days          int `json:"days"`
	Points        int `json:"points"`
	SkippedIDs    int `json:"skipped_ids"`
	ProfilePoints int `json:"profile_points"`
}

// HeadcountPoints builds one headcount point per sample.
func HeadcountPoints(rep *analysis.DayReport) []*write.Point {
	points := make([]*write.Point, len(rep.Times))
	for i, t := range rep.Times {
		points[i] = influxdb2.NewPoint(
			MeasurementHeadcount,
			map[string]string{},
			map[string]interface{}{"count": rep.Headcounts[i]},
			t,
		)
	}
	return points
}

// PresencePoints builds one point per identity and sample. Identities whose
// ids are not safe as tag values are skipped and counted.
func PresencePoints(rep *analysis.DayReport) ([]*write.Point, int) {
	var (
		points  []*write.Point
		skipped int
	)
	for _, who := range rep.Members.Sorted() {
		if err := validation.ValidateIdentityID(who.ID); err != nil {
			skipped++
			continue
		}
		for i, present := range rep.Presence[who.ID] {
			v := 0
			if present {
				v = 1
			}
			points = append(points, influxdb2.NewPoint(
				MeasurementPresence,
				map[string]string{"identity_id": who.ID, "name": who.Name},
				map[string]interface{}{"present": v},
				rep.Times[i],
			))
		}
	}
	return points, skipped
}

// ProfilePoints places a profile on anchor's calendar day in UTC.
func ProfilePoints(p resample.Profile, reduction resample.Reduction, weekday *time.Weekday, anchor civil.Date) []*write.Point {
	tags := map[string]string{"reduction": reduction.String(), "weekday": "all"}
	if weekday != nil {
		tags["weekday"] = weekday.String()
	}
	midnight := anchor.In(time.UTC)
	points := make([]*write.Point, len(p))
	for i, pt := range p {
		points[i] = influxdb2.NewPoint(
			MeasurementProfile,
			tags,
			map[string]interface{}{"value": pt.Value},
			midnight.Add(pt.Offset),
		)
	}
	return points
}

// ExportDays writes headcount and presence points for each date.
//
// # Outputs
//
//   - Summary: Days and points written before any error.
//   - error: catalog.ErrUnknownDate, or the first write error.
func (e *Exporter) ExportDays(ctx context.Context, cat *catalog.Catalog, dates []civil.Date) (Summary, error) {
	var sum Summary
	for _, date := range dates {
		rep, err := cat.Report(ctx, date)
		if err != nil {
			return sum, err
		}
		points := HeadcountPoints(rep)
		presence, skipped := PresencePoints(rep)
		points = append(points, presence...)
		if skipped > 0 {
			e.logger.Warn("identities skipped in export", "date", date.String(), "count", skipped)
		}
		if err := e.write(ctx, points); err != nil {
			return sum, fmt.Errorf("export %s: %w", date, err)
		}
		sum.Days++
		sum.Points += len(points)
		sum.SkippedIDs += skipped
		e.logger.Debug("day exported", "date", date.String(), "points", len(points))
	}
	return sum, nil
}

// ExportProfile computes a headcount profile and writes it on anchor's day.
func (e *Exporter) ExportProfile(ctx context.Context, cat *catalog.Catalog, reduction resample.Reduction, weekday *time.Weekday, anchor civil.Date) (Summary, error) {
	p, err := cat.HeadcountProfile(ctx, reduction, weekday)
	if err != nil {
		return Summary{}, err
	}
	points := ProfilePoints(p, reduction, weekday, anchor)
	if err := e.write(ctx, points); err != nil {
		return Summary{}, fmt.Errorf("export profile: %w", err)
	}
	return Summary{ProfilePoints: len(points), Points: len(points)}, nil
}

func (e *Exporter) write(ctx context.Context, points []*write.Point) error {
	for start := 0; start < len(points); start += e.batchSize {
		end := min(start+e.batchSize, len(points))
		if err := e.writer.WritePoint(ctx, points[start:end]...); err != nil {
			return err
		}
	}
	return nil
}

// Client owns an InfluxDB connection.
type Client struct {
	client influxdb2.Client
	cfg    config.InfluxConfig
}

// Dial connects to InfluxDB and checks its health.
//
// # Description
//
// The token is sealed into a memguard enclave and cfg.Token is cleared
// before anything else happens, so the caller's configuration holds no
// plaintext token once Dial returns. The token is decrypted only while the
// underlying client is built. Go strings cannot be wiped, so the enclave
// bounds how long this package keeps the plaintext reachable; it cannot
// scrub copies the caller made before calling Dial.
//
// # Outputs
//
//   - *Client: Ready client. Call Close when done.
//   - error: ErrNotConfigured, or the health check failed.
func Dial(ctx context.Context, cfg *config.InfluxConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	sealed := sealToken(cfg.Token)
	cfg.Token = ""
	authToken, err := unsealToken(sealed)
	if err != nil {
		return nil, err
	}
	c := &Client{client: influxdb2.NewClient(cfg.URL, authToken), cfg: *cfg}

	health, err := c.client.Health(ctx)
	if err != nil {
		c.client.Close()
		return nil, fmt.Errorf("export: influx health: %w", err)
	}
	if health.Status != "pass" {
		c.client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("export: influx unhealthy: %s %s", health.Status, msg)
	}
	return c, nil
}

// Writer returns the blocking write API for the configured bucket.
func (c *Client) Writer() PointWriter {
	return c.client.WriteAPIBlocking(c.cfg.Org, c.cfg.Bucket)
}

// Close releases the connection.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// sealToken moves a token into an enclave. An empty token yields nil.
func sealToken(token string) *memguard.Enclave {
	if token == "" {
		return nil
	}
	return memguard.NewEnclave([]byte(token))
}

func unsealToken(e *memguard.Enclave) (string, error) {
	if e == nil {
		return "", nil
	}
	buf, err := e.Open()
	if err != nil {
		return "", fmt.Errorf("export: open token: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}
