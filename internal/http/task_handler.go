package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unkit-api/internal/domain"
	"unkit-api/internal/service"
)

// TaskHandler expone el CRUD de tareas y plantillas de la cuenta autenticada.
type TaskHandler struct {
	logger   *zap.Logger
	taskServ *service.TaskService
}

func NewTaskHandler(logger *zap.Logger, taskServ *service.TaskService) *TaskHandler {
	return &TaskHandler{
		logger:   logger,
		taskServ: taskServ,
	}
}

// ListTasks maneja GET /tasks.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	username, ok := h.currentUsername(c)
	if !ok {
		return
	}
	tasks, err := h.taskServ.ListTasks(c.Request.Context(), username)
	if err != nil {
		h.logger.Error("list tasks failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list tasks"})
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// CreateTask maneja POST /tasks.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	username, ok := h.currentUsername(c)
	if !ok {
		return
	}
	var req struct {
		Name          string `json:"name" binding:"required"`
		EstimatedTime int    `json:"estimated_time" binding:"required,min=1"`
		FrontendID    *int64 `json:"taskidbyfrontend"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create task request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	task, err := h.taskServ.CreateTask(c.Request.Context(), username, req.Name, req.EstimatedTime, req.FrontendID)
	if err != nil {
		h.logger.Error("create task failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create task"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

// UpdateTask maneja PUT /tasks/:id.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	username, ok := h.currentUsername(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var patch domain.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.Warn("invalid update task request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	task, err := h.taskServ.UpdateTask(c.Request.Context(), id, username, patch)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		h.logger.Error("update task failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// DeleteTask maneja DELETE /tasks/:id.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	username, ok := h.currentUsername(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.taskServ.DeleteTask(c.Request.Context(), id, username); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		h.logger.Error("delete task failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete task"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSavedTasks maneja GET /saved-tasks.
func (h *TaskHandler) ListSavedTasks(c *gin.Context) {
	username, ok := h.currentUsername(c)
	if !ok {
		return
	}
	tasks, err := h.taskServ.ListSavedTasks(c.Request.Context(), username)
	if err != nil {
		h.logger.Error("list saved tasks failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list saved tasks"})
		return
	}
	if tasks == nil {
		tasks = []domain.SavedTask{}
	}
	c.JSON(http.StatusOK, gin.H{"saved_tasks": tasks})
}

// CreateSavedTask maneja POST /saved-tasks.
func (h *TaskHandler) CreateSavedTask(c *gin.Context) {
	username, ok := h.currentUsername(c)
	if !ok {
		return
	}
	var req struct {
		Name          string `json:"name" binding:"required"`
		EstimatedTime int    `json:"estimated_time" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create saved task request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	task, err := h.taskServ.CreateSavedTask(c.Request.Context(), username, req.Name, req.EstimatedTime)
	if err != nil {
		h.logger.Error("create saved task failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create saved task"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"saved_task": task})
}

// UpdateSavedTask maneja PUT /saved-tasks/:id.
func (h *TaskHandler) UpdateSavedTask(c *gin.Context) {
	username, ok := h.currentUsername(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var patch domain.SavedTaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.Warn("invalid update saved task request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	task, err := h.taskServ.UpdateSavedTask(c.Request.Context(), id, username, patch)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "saved task not found"})
			return
		}
		h.logger.Error("update saved task failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update saved task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved_task": task})
}

// DeleteSavedTask maneja DELETE /saved-tasks/:id.
func (h *TaskHandler) DeleteSavedTask(c *gin.Context) {
	username, ok := h.currentUsername(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.taskServ.DeleteSavedTask(c.Request.Context(), id, username); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "saved task not found"})
			return
		}
		h.logger.Error("delete saved task failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete saved task"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) currentUsername(c *gin.Context) (string, bool) {
	claims, ok := GetAuthClaims(c)
	if !ok || claims.Username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return "", false
	}
	return claims.Username, true
}

func (h *TaskHandler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
