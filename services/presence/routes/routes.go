// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/venuewatch/services/presence/catalog"
	"github.com/AleutianAI/venuewatch/services/presence/handlers"
)

// Deps are what the routes are bound to.
type Deps struct {
	Catalog *catalog.Catalog

	// Reload backs POST /v1/reload. Nil leaves the route out.
	Reload handlers.ReloadFunc

	// Metrics backs GET /metrics. Nil leaves the route out.
	Metrics http.Handler
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	cat := deps.Catalog

	router.GET("/health", handlers.HealthCheck(cat))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		days := v1.Group("/days")
		{
			days.GET("", handlers.ListDays(cat))
			days.GET("/:date/headcounts", handlers.GetDayHeadcounts(cat))
			days.GET("/:date/players", handlers.GetDayPlayers(cat))
			days.GET("/:date/players/:id", handlers.GetDayTimeline(cat))
		}
		players := v1.Group("/players")
		{
			players.GET("", handlers.ListPlayers(cat))
			players.GET("/:id/dates", handlers.GetPlayDates(cat))
			players.GET("/:id/playtime", handlers.GetPlaytime(cat))
		}
		v1.GET("/headcounts/profile", handlers.GetHeadcountProfile(cat))
		if deps.Reload != nil {
			v1.POST("/reload", handlers.TriggerReload(deps.Reload))
		}
	}
}
