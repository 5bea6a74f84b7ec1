// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers serves catalog queries over HTTP.
//
// Every handler is a constructor returning a gin.HandlerFunc bound to its
// dependencies. Errors are reported as {"error": "..."} with:
//
//	400  malformed date, identity id, reduction or weekday
//	404  unknown date or identity; profile over zero matching days
//	500  anything else
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/venuewatch/pkg/validation"
	"github.com/AleutianAI/venuewatch/services/presence/catalog"
	"github.com/AleutianAI/venuewatch/services/presence/resample"
	"github.com/AleutianAI/venuewatch/services/presence/snapshot"
	"github.com/AleutianAI/venuewatch/services/presence/telemetry"
)

// ReloadFunc re-reads every day from storage.
type ReloadFunc func(ctx context.Context) (catalog.ReloadResult, error)

// errBadRequest marks errors caused by the request itself.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnknownDate),
		errors.Is(err, snapshot.ErrUnknownIdentity),
		errors.Is(err, resample.ErrEmptyAccumulator):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		telemetry.LoggerWithTrace(c.Request.Context(), slog.Default()).Error("request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// =============================================================================
// Parameter Parsing
// =============================================================================

func dateParam(c *gin.Context) (civil.Date, error) {
	d, err := validation.ParseDate(c.Param("date"))
	if err != nil {
		return civil.Date{}, badRequest("%v", err)
	}
	return d, nil
}

func idParam(c *gin.Context) (string, error) {
	id, err := validation.SanitizeIdentityID(c.Param("id"))
	if err != nil {
		return "", badRequest("%v", err)
	}
	return id, nil
}

// profileQuery is the query string of the profile endpoint.
type profileQuery struct {
	Reduction string `form:"reduction" binding:"omitempty,max=32"`
	Weekday   string `form:"weekday" binding:"omitempty,max=16"`
}

func (q profileQuery) parse() (resample.Reduction, *time.Weekday, error) {
	reduction := resample.Average
	if q.Reduction != "" {
		r, err := resample.ParseReduction(q.Reduction)
		if err != nil {
			return 0, nil, badRequest("%v", err)
		}
		reduction = r
	}
	if q.Weekday == "" {
		return reduction, nil, nil
	}
	wd, err := validation.ParseWeekday(q.Weekday)
	if err != nil {
		return 0, nil, badRequest("%v", err)
	}
	return reduction, &wd, nil
}

// =============================================================================
// Responses
// =============================================================================

// ProfilePoint is one grid point as served over HTTP.
type ProfilePoint struct {
	TimeOfDay     string  `json:"time_of_day"`
	OffsetSeconds int64   `json:"offset_seconds"`
	Value         float64 `json:"value"`
}

// ProfileResponse is a resampled series.
type ProfileResponse struct {
	Reduction string         `json:"reduction,omitempty"`
	Weekday   string         `json:"weekday,omitempty"`
	Identity  string         `json:"identity_id,omitempty"`
	Points    []ProfilePoint `json:"points"`
}

func profilePoints(p resample.Profile) []ProfilePoint {
	out := make([]ProfilePoint, len(p))
	for i, pt := range p {
		h := int(pt.Offset / time.Hour)
		m := int(pt.Offset % time.Hour / time.Minute)
		out[i] = ProfilePoint{
			TimeOfDay:     fmt.Sprintf("%02d:%02d", h, m),
			OffsetSeconds: int64(pt.Offset / time.Second),
			Value:         pt.Value,
		}
	}
	return out
}

// =============================================================================
// Handlers
// =============================================================================

// HealthCheck reports liveness and how much data is loaded.
func HealthCheck(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{"status": "ok", "days": cat.Len()}
		if at := cat.LoadedAt(); !at.IsZero() {
			resp["loaded_at"] = at.UTC().Format(time.RFC3339)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ListDays returns the loaded dates, ascending.
func ListDays(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"dates": cat.Dates()})
	}
}

// GetDayHeadcounts returns the headcount at each sample of a day.
func GetDayHeadcounts(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		date, err := dateParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		counts, err := cat.HeadcountsOn(c.Request.Context(), date)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": date, "headcounts": counts})
	}
}

// GetDayPlayers returns who was present at each sample of a day.
func GetDayPlayers(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		date, err := dateParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		players, err := cat.PlayersOn(c.Request.Context(), date)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": date, "samples": players})
	}
}

// GetDayTimeline returns one identity's transitions and presence for a day.
func GetDayTimeline(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		date, err := dateParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		id, err := idParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		tl, err := cat.TimelineOn(c.Request.Context(), date, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, tl)
	}
}

// ListPlayers returns every identity seen on any loaded day.
func ListPlayers(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"players": cat.Identities(c.Request.Context())})
	}
}

// GetPlayDates returns the dates an identity had a confirmed transition.
func GetPlayDates(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		dates, err := cat.PlayDates(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"identity_id": id, "dates": dates})
	}
}

// GetPlaytime returns an identity's presence summed over days on the grid.
func GetPlaytime(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		p, err := cat.Playtime(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ProfileResponse{
			Reduction: resample.Sum.String(),
			Identity:  id,
			Points:    profilePoints(p),
		})
	}
}

// GetHeadcountProfile returns headcounts folded over days on the grid.
//
// Query parameters: reduction (sum, average, median, max; default average)
// and weekday (name or 0-6 with Sunday as 0; default every day).
func GetHeadcountProfile(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q profileQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, badRequest("%v", err))
			return
		}
		reduction, weekday, err := q.parse()
		if err != nil {
			respondError(c, err)
			return
		}
		p, err := cat.HeadcountProfile(c.Request.Context(), reduction, weekday)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := ProfileResponse{Reduction: reduction.String(), Points: profilePoints(p)}
		if weekday != nil {
			resp.Weekday = weekday.String()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// TriggerReload re-reads storage and reports what was loaded.
func TriggerReload(reload ReloadFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := reload(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
