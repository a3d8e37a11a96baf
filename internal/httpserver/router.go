package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"habittracker/internal/handler"
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Options struct {
	JWTSecret   string
	CORSOrigins []string
	Checks      []ReadinessCheck
}

type Router struct {
	Engine *gin.Engine
}

// NewRouter builds the API engine. Habit routes require a bearer token only
// when opts.JWTSecret is set.
func NewRouter(habitHandler *handler.HabitHandler, logger *zap.Logger, opts Options) *Router {
	r := newEngine(logger, opts.Checks)
	r.Use(CORSMiddleware(opts.CORSOrigins))

	api := r.Group("/api")
	if opts.JWTSecret != "" {
		api.Use(AuthMiddleware(opts.JWTSecret))
	}
	{
		api.POST("/habits", habitHandler.CreateHabit)
		api.GET("/habits", habitHandler.ListHabits)
		api.GET("/habits/:id", habitHandler.GetHabit)
		api.PUT("/habits/:id", habitHandler.ReplaceHabit)
		api.DELETE("/habits/:id", habitHandler.DeleteHabit)
		api.PUT("/habits/:id/complete", habitHandler.UpdateCompletion)
		api.GET("/habits/:id/progress", habitHandler.GetProgress)
		api.GET("/habits/:id/stats", habitHandler.GetStats)
		api.GET("/streaks", habitHandler.GetLeaderboard)
	}

	return &Router{Engine: r}
}

// NewWorkerRouter serves only probes and metrics for the worker process.
func NewWorkerRouter(logger *zap.Logger, checks []ReadinessCheck) *Router {
	return &Router{Engine: newEngine(logger, checks)}
}

func newEngine(logger *zap.Logger, checks []ReadinessCheck) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), RequestLogger(logger), MetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": check.Name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
