package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/mmpotulo28/redirect/cmd/middleware"
	"github.com/mmpotulo28/redirect/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers, ginMode string, log *zerolog.Logger) *ginext.Engine {
	app := ginext.New(ginMode)

	app.Use(ginext.Recovery())
	app.Use(middleware.LoggingMiddleware(log))
	app.Use(middleware.MetricsMiddleware())

	app.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public resolution surface.
	app.GET("/:short_code", r.Service.Resolve)
	app.POST("/:short_code/verify", r.Service.VerifyPassword)

	// Dashboard API, behind the identity proxy header.
	apiGroup := app.Group("/api")
	apiGroup.Use(middleware.AuthMiddleware())

	redirects := apiGroup.Group("/redirects")
	redirects.GET("", r.Service.ListRedirects)
	redirects.POST("", r.Service.CreateRedirect)
	redirects.GET("/:id", r.Service.GetRedirect)
	redirects.PATCH("/:id", r.Service.UpdateRedirect)
	redirects.DELETE("/:id", r.Service.DeleteRedirect)
	redirects.GET("/:id/analytics", r.Service.ShowAnalytics)
	redirects.PATCH("/:id/qrcode", r.Service.SetQRCode)

	return app
}
