package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aranticlabs/bugpin/backend/internal/middleware"
	"github.com/aranticlabs/bugpin/backend/internal/models"
	"github.com/aranticlabs/bugpin/backend/internal/services"
	"github.com/aranticlabs/bugpin/backend/internal/tracker"
	"github.com/aranticlabs/bugpin/backend/pkg/response"
)

type IntegrationHandler struct {
	integrationService *services.IntegrationService
	projectService     *services.ProjectService

	trackerFor func(*models.Integration) (tracker.Client, error)
}

func NewIntegrationHandler(db *gorm.DB, files tracker.Files) *IntegrationHandler {
	return &IntegrationHandler{
		integrationService: services.NewIntegrationService(db),
		projectService:     services.NewProjectService(db),
		trackerFor: func(integ *models.Integration) (tracker.Client, error) {
			return tracker.New(integ, files)
		},
	}
}

type CreateIntegrationRequest struct {
	ProjectID         uint   `json:"project_id" binding:"required"`
	Name              string `json:"name" binding:"required"`
	Type              string `json:"type"`
	BaseURL           string `json:"base_url"`
	Owner             string `json:"owner"`
	Repo              string `json:"repo"`
	RepoURL           string `json:"repo_url"` // alternative to owner/repo
	AccessToken       string `json:"access_token" binding:"required"`
	Labels            string `json:"labels"`
	Assignees         string `json:"assignees"`
	UploadAttachments *bool  `json:"upload_attachments"`
}

type UpdateIntegrationRequest struct {
	Name              string  `json:"name"`
	BaseURL           *string `json:"base_url"`
	Owner             string  `json:"owner"`
	Repo              string  `json:"repo"`
	AccessToken       string  `json:"access_token"`
	Labels            *string `json:"labels"`
	Assignees         *string `json:"assignees"`
	UploadAttachments *bool   `json:"upload_attachments"`
	IsActive          *bool   `json:"is_active"`
}

// integrationView decorates an integration with its masked credential.
func integrationView(integ *models.Integration) gin.H {
	return gin.H{
		"integration":         integ,
		"access_token_masked": integ.MaskAccessToken(),
	}
}

// List returns integrations, optionally filtered by project
// GET /api/integrations
func (h *IntegrationHandler) List(c *gin.Context) {
	params := &services.IntegrationListParams{}
	params.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	params.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pid, err := strconv.ParseUint(c.Query("project_id"), 10, 32); err == nil {
		params.ProjectID = uint(pid)
	}

	items, total, err := h.integrationService.List(params)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Paged(c, total, params.Page, params.PageSize, items)
}

// GetByID returns one integration with a masked credential
// GET /api/integrations/:id
func (h *IntegrationHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid integration id")
		return
	}

	integ, err := h.integrationService.ByID(uint(id))
	if err != nil {
		response.NotFound(c, "integration not found")
		return
	}

	response.Success(c, integrationView(integ))
}

// Create registers a tracker integration for a project
// POST /api/integrations
func (h *IntegrationHandler) Create(c *gin.Context) {
	var req CreateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if req.Type == "" {
		req.Type = models.IntegrationTypeGitHub
	}
	if req.Type != models.IntegrationTypeGitHub {
		response.BadRequest(c, "unsupported tracker type: "+req.Type)
		return
	}

	if req.RepoURL != "" {
		ref, err := tracker.ParseRepoURL(req.RepoURL)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		req.Owner = ref.Owner
		req.Repo = ref.Repo
		if req.BaseURL == "" {
			req.BaseURL = ref.APIBaseURL
		}
	}
	if req.Owner == "" || req.Repo == "" {
		response.BadRequest(c, "owner and repo are required (or pass repo_url)")
		return
	}

	if _, err := h.projectService.GetByID(req.ProjectID); err != nil {
		response.NotFound(c, "project not found")
		return
	}

	uploadAttachments := true
	if req.UploadAttachments != nil {
		uploadAttachments = *req.UploadAttachments
	}

	integ := &models.Integration{
		ProjectID:         req.ProjectID,
		Name:              req.Name,
		Type:              req.Type,
		BaseURL:           req.BaseURL,
		Owner:             req.Owner,
		Repo:              req.Repo,
		AccessToken:       req.AccessToken,
		Labels:            req.Labels,
		Assignees:         req.Assignees,
		UploadAttachments: uploadAttachments,
		SyncMode:          models.SyncModeManual,
		IsActive:          true,
		CreatedBy:         middleware.GetUserID(c),
	}

	if err := h.integrationService.Create(integ); err != nil {
		if errors.Is(err, services.ErrIntegrationExists) {
			response.Error(c, response.NewConflict(err.Error()))
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Created(c, integrationView(integ))
}

// Update edits an integration's connection settings
// PUT /api/integrations/:id
func (h *IntegrationHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid integration id")
		return
	}

	if _, err := h.integrationService.ByID(uint(id)); err != nil {
		response.NotFound(c, "integration not found")
		return
	}

	var req UpdateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	fields := make(map[string]interface{})
	if req.Name != "" {
		fields["name"] = req.Name
	}
	if req.BaseURL != nil {
		fields["base_url"] = *req.BaseURL
	}
	if req.Owner != "" {
		fields["owner"] = req.Owner
	}
	if req.Repo != "" {
		fields["repo"] = req.Repo
	}
	if req.AccessToken != "" {
		fields["access_token"] = req.AccessToken
	}
	if req.Labels != nil {
		fields["labels"] = *req.Labels
	}
	if req.Assignees != nil {
		fields["assignees"] = *req.Assignees
	}
	if req.UploadAttachments != nil {
		fields["upload_attachments"] = *req.UploadAttachments
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}

	if len(fields) > 0 {
		if err := h.integrationService.Update(uint(id), fields); err != nil {
			response.ServerError(c, err.Error())
			return
		}
	}

	integ, err := h.integrationService.ByID(uint(id))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, integrationView(integ))
}

// Delete removes an integration
// DELETE /api/integrations/:id
func (h *IntegrationHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid integration id")
		return
	}

	if err := h.integrationService.Delete(uint(id)); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "integration deleted"})
}

// TestConnection checks the stored credential against the tracker
// POST /api/integrations/:id/test
func (h *IntegrationHandler) TestConnection(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid integration id")
		return
	}

	integ, err := h.integrationService.ByID(uint(id))
	if err != nil {
		response.NotFound(c, "integration not found")
		return
	}

	client, err := h.trackerFor(integ)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	repo, err := client.TestConnection(c.Request.Context())
	if err != nil {
		response.Success(c, gin.H{"ok": false, "error": err.Error()})
		return
	}

	response.Success(c, gin.H{"ok": true, "repository": repo})
}

// TestConfig checks a candidate credential before saving it
// POST /api/integrations/test
func (h *IntegrationHandler) TestConfig(c *gin.Context) {
	var req struct {
		Type        string `json:"type"`
		BaseURL     string `json:"base_url"`
		Owner       string `json:"owner" binding:"required"`
		Repo        string `json:"repo" binding:"required"`
		AccessToken string `json:"access_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Type == "" {
		req.Type = models.IntegrationTypeGitHub
	}

	client, err := h.trackerFor(&models.Integration{
		Type:        req.Type,
		BaseURL:     req.BaseURL,
		Owner:       req.Owner,
		Repo:        req.Repo,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	repo, err := client.TestConnection(c.Request.Context())
	if err != nil {
		response.Success(c, gin.H{"ok": false, "error": err.Error()})
		return
	}

	response.Success(c, gin.H{"ok": true, "repository": repo})
}

// ListRepositories lists repositories visible to the credential
// GET /api/integrations/:id/repositories
func (h *IntegrationHandler) ListRepositories(c *gin.Context) {
	h.lookup(c, func(client tracker.Client, ctx *gin.Context) (interface{}, error) {
		return client.ListRepositories(ctx.Request.Context())
	})
}

// ListLabels lists the repository's labels
// GET /api/integrations/:id/labels
func (h *IntegrationHandler) ListLabels(c *gin.Context) {
	h.lookup(c, func(client tracker.Client, ctx *gin.Context) (interface{}, error) {
		return client.ListLabels(ctx.Request.Context())
	})
}

// ListAssignees lists users assignable to issues
// GET /api/integrations/:id/assignees
func (h *IntegrationHandler) ListAssignees(c *gin.Context) {
	h.lookup(c, func(client tracker.Client, ctx *gin.Context) (interface{}, error) {
		return client.ListAssignees(ctx.Request.Context())
	})
}

func (h *IntegrationHandler) lookup(c *gin.Context, fetch func(tracker.Client, *gin.Context) (interface{}, error)) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid integration id")
		return
	}

	integ, err := h.integrationService.ByID(uint(id))
	if err != nil {
		response.NotFound(c, "integration not found")
		return
	}

	client, err := h.trackerFor(integ)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	items, err := fetch(client, c)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, items)
}
