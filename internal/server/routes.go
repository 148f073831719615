package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RegisterRoutes wires all API endpoints.
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	e.HTTPErrorHandler = NotFoundJSON(e)

	v1 := e.Group("/v1")
	v1.Use(SetNoCacheHeaders)
	v1.Use(SetJSONContentType)

	if cfg.APIKey != "" {
		v1.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1, nil
			},
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/v1/health"
			},
		}))
	}

	v1.GET("/health", h.Health)
	v1.GET("/entries/recent", h.RecentEntries)
	v1.GET("/prices/:contract", h.DailyPrice)
}

// NotFoundJSON returns an error handler that renders echo errors as the
// uniform JSON error payload instead of the default HTML page.
func NotFoundJSON(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := "internal server error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			switch code {
			case http.StatusNotFound:
				msg = "not found"
			case http.StatusMethodNotAllowed:
				msg = "method not allowed"
			case http.StatusUnauthorized:
				msg = "unauthorized"
			default:
				if s, ok := he.Message.(string); ok {
					msg = s
				}
			}
		}
		_ = c.JSON(code, ErrorResponse{Error: msg, Code: code})
	}
}
