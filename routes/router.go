package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cppla/bbsboard/config"
	"github.com/cppla/bbsboard/controllers"
	"github.com/cppla/bbsboard/middleware"
	"github.com/cppla/bbsboard/services"
	"github.com/cppla/bbsboard/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, boards *controllers.BoardController, identity services.Identifier, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file when configured
	accessLogger := logger
	if cfg.GinPath != "" {
		gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
		if err == nil {
			accessLogger = gl
		} else {
			logger.Warn("gin access log unavailable, using application logger", zap.Error(err))
		}
	}
	r.Use(middleware.RequestLogger(accessLogger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Metrics())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if strings.EqualFold(cfg.StorageDriver, "local") {
		r.Static("/static/uploads", cfg.StorageLocalRoot)
	}

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	boardsGroup := r.Group("/boards")
	boardsGroup.GET("/:category", boards.List)
	boardsGroup.GET("/:category/:no", boards.Detail)

	protected := boardsGroup.Group("")
	protected.Use(middleware.RateLimit(cfg.RateLimitPerMinute), middleware.Authenticate(identity, logger))
	protected.POST("/:category", boards.Create)
	protected.PUT("/:category/:no", boards.Update)
	protected.DELETE("/:category/:no", boards.Delete)
	protected.DELETE("/:category/:no/files/:fileNo", boards.DeleteFile)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Failure(ctx, http.StatusNotFound, "route not found")
	})

	return r
}
