package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mizroch-Management/ocma-sub004/internal/common"
	"github.com/Mizroch-Management/ocma-sub004/internal/config"
	"github.com/Mizroch-Management/ocma-sub004/internal/credential"
	"github.com/Mizroch-Management/ocma-sub004/internal/executor"
	"github.com/Mizroch-Management/ocma-sub004/internal/httpapi/handlers"
	"github.com/Mizroch-Management/ocma-sub004/internal/httpapi/middleware"
	"github.com/Mizroch-Management/ocma-sub004/internal/job"
)

func NewRouter(cfg config.Config, jobs *job.Service, exec *executor.Executor, creds *credential.Store) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(cfg, jobs, exec, creds)

	r.GET("/ping", h.Ping)

	// tenant routes (JWT required)
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.POST("/jobs", h.CreateJob)
	authGroup.GET("/jobs/:job_id", h.GetJob)
	authGroup.POST("/jobs/:job_id/cancel", h.CancelJob)
	authGroup.PUT("/accounts/:platform", h.PutAccount)

	// operator routes
	opGroup := r.Group("/")
	opGroup.Use(middleware.OperatorRequired(cfg.OperatorKeyHash))
	opGroup.POST("/jobs/sweep", h.Sweep)

	return r
}
