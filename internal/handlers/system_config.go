package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/services"
)

type SystemConfigHandler struct {
	configService *services.SystemConfigService
}

func NewSystemConfigHandler(db *gorm.DB) *SystemConfigHandler {
	return &SystemConfigHandler{
		configService: services.NewSystemConfigService(db),
	}
}

func (h *SystemConfigHandler) GetLDAPConfig(c *gin.Context) {
	config := h.configService.GetLDAPConfig()
	c.JSON(http.StatusOK, config)
}

func (h *SystemConfigHandler) UpdateLDAPConfig(c *gin.Context) {
	var req services.UpdateLDAPConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.configService.UpdateLDAPConfig(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.configService.GetLDAPConfig())
}

func (h *SystemConfigHandler) GetAuthSessionConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.configService.GetAuthSessionConfig())
}

func (h *SystemConfigHandler) UpdateAuthSessionConfig(c *gin.Context) {
	var req services.UpdateAuthSessionConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.configService.UpdateAuthSessionConfig(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.configService.GetAuthSessionConfig())
}

func (h *SystemConfigHandler) GetSyncSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.configService.GetSyncSettings())
}

func (h *SystemConfigHandler) UpdateSyncSettings(c *gin.Context) {
	var req services.UpdateSyncSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.configService.UpdateSyncSettings(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.configService.GetSyncSettings())
}
