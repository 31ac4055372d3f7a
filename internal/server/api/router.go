package api

import (
	"strconv"

	"filedrop/internal/server/config"
	"filedrop/internal/server/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, auth *service.AuthService, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxUploadBytes, 10)))

	// Health
	e.GET("/health", handler.HandleHealth)

	// Guest upload
	e.GET("/upload/:token", handler.HandleLinkInfo)
	e.POST("/upload/:token", handler.HandleUpload)

	// Admin authentication
	e.POST("/api/login", handler.HandleLogin)
	e.POST("/api/logout", handler.HandleLogout)

	// Admin operations (session required)
	admin := e.Group("/api/admin", SessionAuth(auth))
	admin.GET("/links", handler.HandleListLinks)
	admin.POST("/links", handler.HandleCreateLink)
	admin.DELETE("/links/:id", handler.HandleDeleteLink)
	admin.GET("/links/:id/files", handler.HandleListLinkFiles)
	admin.GET("/uploads", handler.HandleListUploads)
	admin.GET("/uploads/:id/download", handler.HandleDownloadUpload)
	admin.DELETE("/uploads/:id", handler.HandleDeleteUpload)
	admin.POST("/change-password", handler.HandleChangePassword)
	admin.GET("/stats", handler.HandleStats)

	return e
}
