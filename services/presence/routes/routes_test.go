// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/venuewatch/services/presence/analysis"
	"github.com/AleutianAI/venuewatch/services/presence/catalog"
	"github.com/AleutianAI/venuewatch/services/presence/resample"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func hasRoute(router *gin.Engine, method, path string) bool {
	for _, r := range router.Routes() {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}

func newCatalog() *catalog.Catalog {
	return catalog.New(analysis.New(analysis.DefaultConfig()), resample.DefaultGrid())
}

func TestSetupRoutes_All(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{
		Catalog: newCatalog(),
		Reload: func(context.Context) (catalog.ReloadResult, error) {
			return catalog.ReloadResult{}, nil
		},
		Metrics: http.NotFoundHandler(),
	})

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"GET", "/v1/days"},
		{"GET", "/v1/days/:date/headcounts"},
		{"GET", "/v1/days/:date/players"},
		{"GET", "/v1/days/:date/players/:id"},
		{"GET", "/v1/players"},
		{"GET", "/v1/players/:id/dates"},
		{"GET", "/v1/players/:id/playtime"},
		{"GET", "/v1/headcounts/profile"},
		{"POST", "/v1/reload"},
	}
	for _, e := range expected {
		assert.True(t, hasRoute(router, e.method, e.path), "%s %s", e.method, e.path)
	}
}

func TestSetupRoutes_OptionalRoutesOmitted(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{Catalog: newCatalog()})

	assert.False(t, hasRoute(router, "GET", "/metrics"))
	assert.False(t, hasRoute(router, "POST", "/v1/reload"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/days", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"dates":[]}`, w.Body.String())
}
