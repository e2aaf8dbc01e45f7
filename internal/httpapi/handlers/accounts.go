package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mizroch-Management/ocma-sub004/internal/common"
	"github.com/Mizroch-Management/ocma-sub004/internal/credential"
)

type putAccountReq struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
	// Seconds until the access token expires; zero means non-expiring.
	ExpiresIn int64 `json:"expires_in"`
}

// PutAccount stores what the OAuth authorization flow produced for a
// connected account. The exchange itself happens outside this service;
// we only keep and refresh its output.
func (h *Handler) PutAccount(c *gin.Context) {
	tenantID, okk := tenantIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	platform := strings.ToLower(strings.TrimSpace(c.Param("platform")))
	if platform == "" {
		common.Fail(c, http.StatusBadRequest, 10003, "platform required")
		return
	}
	if _, ok := h.Cfg.Platforms[platform]; !ok {
		common.Fail(c, http.StatusBadRequest, 10004, "unknown platform")
		return
	}

	var req putAccountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	cred := &credential.Credential{
		TenantID:    tenantID,
		Platform:    platform,
		AccessToken: req.AccessToken,
	}
	if req.RefreshToken != "" {
		rt := req.RefreshToken
		cred.RefreshToken = &rt
	}
	if req.ExpiresIn > 0 {
		exp := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
		cred.ExpiresAt = &exp
	}

	if err := h.Creds.Put(c.Request.Context(), cred); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to store credentials")
		return
	}

	common.OK(c, gin.H{"platform": platform})
}
