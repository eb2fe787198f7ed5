package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/datallboy/hlsget/internal/api/controllers"
	"github.com/datallboy/hlsget/internal/app"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {
	log := app.Logger.Component("api")

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	jobs := &controllers.JobsController{App: app}

	g := e.Group("/api/jobs")
	g.POST("", jobs.Create)
	g.GET("", jobs.List)
	g.GET("/:id", jobs.Get)
	g.DELETE("/:id", jobs.Cancel)
}
