package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/analystcopilot/core/pkg/audit"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/rbac"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// login handles POST /auth/login.
func (h *ingestHandlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.deps.Auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.auditAuth("auth.login_failed", req.Username, models.SeverityMedium, err)
		writeError(c, err)
		return
	}
	h.auditAuth("auth.login", req.Username, models.SeverityLow, nil)
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(rbac.TokenTTL.Seconds()),
	})
}

// logout handles POST /auth/logout: revokes the bearer token's JTI so it's
// rejected on every subsequent request within §6's one-second bound.
func (h *ingestHandlers) logout(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		c.JSON(http.StatusOK, gin.H{"logged_out": true})
		return
	}
	if err := h.deps.Auth.Logout(c.Request.Context(), token); err != nil {
		writeError(c, err)
		return
	}
	if identity, ok := currentIdentity(c); ok {
		h.auditAuth("auth.logout", identity.UserID, models.SeverityLow, nil)
	}
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

// auditAuth records a login/logout event in the audit chain, best-effort:
// a missing chain or append failure never blocks the auth response.
func (h *ingestHandlers) auditAuth(action, userID string, sev models.Severity, cause error) {
	if h.deps.AuditChain == nil {
		return
	}
	details := models.JSONMap{}
	if cause != nil {
		details["error"] = cause.Error()
	}
	_, _ = h.deps.AuditChain.Append(context.Background(), audit.Entry{
		Action:   action,
		UserID:   &userID,
		Details:  details,
		Severity: sev,
	})
}
