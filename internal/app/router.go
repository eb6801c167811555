package app

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/flowforge/mediaflow/internal/health"
	"github.com/flowforge/mediaflow/internal/http/middleware"
	"github.com/flowforge/mediaflow/internal/platform/apierr"
)

// wireRouter mirrors the teacher's server.NewRouter: gin.Default() plus a
// permissive CORS policy, narrowed to this service's own surface — health
// and metrics, since job submission/status live on the web application
// that owns the tasks table (§1 non-goals).
func wireRouter(a *App) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("mediaflow"))
	router.Use(middleware.AttachTraceContext())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: false,
	}))

	router.GET("/healthz", health.Handler(a.Health))
	router.GET("/metrics", gin.WrapH(a.Metrics.Handler()))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.NoRoute(func(c *gin.Context) {
		apiErr := apierr.New(http.StatusNotFound, "not_found", nil)
		c.JSON(apiErr.Status, gin.H{"code": apiErr.Code})
	})

	return router
}
