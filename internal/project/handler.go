package project

import (
	"net/http"

	"site-builder/internal/errors"
	"site-builder/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateRequest struct {
	Prompt string `json:"prompt" binding:"required,max=4000"`
}

type UpdateRequest struct {
	HTML string `json:"html" binding:"required"`
}

type EditRequest struct {
	Prompt string `json:"prompt" binding:"required,max=2000"`
	HTML   string `json:"html" binding:"required"`
}

// ParseID validates a project id path parameter
func ParseID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.Error(errors.BadRequest("Invalid project id", err))
		return "", false
	}
	return id, true
}

func (h *Handler) Create(c *gin.Context) {
	var form CreateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := utils.UserID(c)
	project, err := h.service.CreateProject(c.Request.Context(), userID, form.Prompt)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (h *Handler) List(c *gin.Context) {
	userID, _ := utils.UserID(c)
	page, pageSize := utils.GetPaginationParams(c)

	result, err := h.service.ListProjects(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Show(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}
	userID, _ := utils.UserID(c)

	project, err := h.service.GetProject(c.Request.Context(), id, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, project)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var form UpdateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}
	userID, _ := utils.UserID(c)

	project, err := h.service.UpdateProject(c.Request.Context(), id, userID, form.HTML)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// AIEdit returns a candidate document for the caller to preview; nothing is saved
func (h *Handler) AIEdit(c *gin.Context) {
	var form EditRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	candidate, err := h.service.ProposeEdit(c.Request.Context(), form.Prompt, form.HTML)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"html": candidate})
}
