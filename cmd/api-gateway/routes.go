package main

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/transcript-review-api/internal/handler"
	"github.com/noah-isme/transcript-review-api/internal/middleware"
	"github.com/noah-isme/transcript-review-api/internal/models"
)

type routeHandlers struct {
	sessions middleware.SessionAuthenticator
	session  *handler.SessionHandler
	work     *handler.WorkHandler
	history  *handler.HistoryHandler
	admin    *handler.AdminHandler
	metrics  *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, prefix string, h routeHandlers) {
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	api := r.Group(prefix)
	api.POST("/sessions", h.session.Create)

	authed := api.Group("", middleware.Session(h.sessions))
	authed.GET("/", middleware.RoleScreen(prefix, "", models.RoleUser, models.RoleAnnotator), h.work.AnnotatorScreen)
	authed.POST("/saveFile", middleware.RequireRoles(models.RoleAnnotator), h.work.SaveFile)
	authed.GET("/reviewer", middleware.RoleScreen(prefix, "", models.RoleReviewer), h.work.ReviewerScreen)
	authed.POST("/reviewer", middleware.RequireRoles(models.RoleReviewer), h.work.Review)
	authed.POST("/release", middleware.RequireRoles(models.RoleAnnotator, models.RoleReviewer), h.work.Release)

	authed.GET("/history", h.history.List)
	authed.GET("/history/export", h.history.Export)

	authed.GET("/admin", middleware.RoleScreen(prefix, "/", models.RoleAdmin), middleware.WithResponseMeta(), h.admin.Dashboard)
	admin := authed.Group("/admin", middleware.RequireRoles(models.RoleAdmin), middleware.WithResponseMeta())
	admin.GET("/users", h.admin.ListUsers)
	admin.POST("/users", h.admin.UpdateRole)
	admin.POST("/texts", h.admin.UploadTexts)
	admin.GET("/stats", h.admin.Stats)
}
