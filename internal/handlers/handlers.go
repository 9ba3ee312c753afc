// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/jimuzhe/doNow/internal/database"
	"github.com/jimuzhe/doNow/internal/repository"
	"github.com/jimuzhe/doNow/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "DoNow Auth Server"

// Handlers contains all HTTP handlers.
type Handlers struct {
	auth *auth.Service
	repo *repository.Repository
}

// New creates a new Handlers instance.
func New(svc *auth.Service, repo *repository.Repository) *Handlers {
	return &Handlers{auth: svc, repo: repo}
}

// Health returns the health status and the database backend in use.
func (h *Handlers) Health(c echo.Context) error {
	resp := map[string]string{
		"status":   "ok",
		"service":  ServiceName,
		"database": databaseLabel(h.repo.DriverName()),
	}
	if err := h.repo.Ping(c.Request().Context()); err != nil {
		resp["status"] = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func databaseLabel(driver string) string {
	switch driver {
	case database.DriverPostgres:
		return "PostgreSQL"
	case database.DriverSQLite:
		return "SQLite"
	default:
		return driver
	}
}
