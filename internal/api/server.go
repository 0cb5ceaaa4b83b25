// Package api exposes the reconciliation service over HTTP for the field
// agent client.
package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/banking/verification-service/internal/geo"
	"github.com/banking/verification-service/internal/pkg/logger"
	"github.com/banking/verification-service/internal/reconciliation"
)

// Config holds HTTP adapter settings
type Config struct {
	JWTSecret      string
	AllowedOrigins []string
	BodyLimit      string
}

// Handler serves the investigation endpoints
type Handler struct {
	svc *reconciliation.Service
	geo *geo.Registry
	log *logger.Logger
}

// requestValidator adapts validator/v10 to echo.Validator
type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// NewServer builds the echo instance with middleware and routes
func NewServer(svc *reconciliation.Service, registry *geo.Registry, cfg Config, log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}

	h := &Handler{svc: svc, geo: registry, log: log.Named("http")}
	e.HTTPErrorHandler = h.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
	}))
	e.Use(h.requestLogger)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := e.Group("/v1")
	if cfg.JWTSecret != "" {
		v1.Use(agentAuth([]byte(cfg.JWTSecret)))
	}

	inv := v1.Group("/investigations")
	inv.GET("", h.listInvestigations)
	inv.POST("", h.createInvestigation)
	inv.GET("/:appId", h.getInvestigation)
	inv.GET("/:appId/summary", h.getSummary)
	inv.GET("/:appId/diffs", h.getDiffs)
	inv.GET("/:appId/sections/:sectionId/progress", h.getSectionProgress)
	inv.PUT("/:appId/geolocation", h.setGeolocation)
	inv.GET("/:appId/finalization", h.canFinalize)
	inv.POST("/:appId/finalize", h.finalize)

	field := inv.Group("/:appId/sections/:sectionId/fields/:fieldId")
	field.POST("/observe", h.observe)
	field.POST("/confirm", h.confirm)
	field.POST("/adjust", h.adjust)
	field.POST("/block", h.block)
	field.POST("/validate", h.validate)

	return e
}
