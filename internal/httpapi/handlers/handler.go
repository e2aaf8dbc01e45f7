package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Mizroch-Management/ocma-sub004/internal/common"
	"github.com/Mizroch-Management/ocma-sub004/internal/config"
	"github.com/Mizroch-Management/ocma-sub004/internal/credential"
	"github.com/Mizroch-Management/ocma-sub004/internal/executor"
	"github.com/Mizroch-Management/ocma-sub004/internal/httpapi/middleware"
	"github.com/Mizroch-Management/ocma-sub004/internal/job"
)

type Handler struct {
	Cfg   config.Config
	Jobs  *job.Service
	Exec  *executor.Executor
	Creds *credential.Store
}

func NewHandler(cfg config.Config, jobs *job.Service, exec *executor.Executor, creds *credential.Store) *Handler {
	return &Handler{Cfg: cfg, Jobs: jobs, Exec: exec, Creds: creds}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}

func tenantIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.TenantIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
