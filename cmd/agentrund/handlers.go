package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taipm/agentrun/agent"
)

// NewRouter builds the gin.Engine exposing the route table: task
// planning/CRUD plus a liveness check. Validation errors surface as 400,
// not-found as 404, and everything else as 500 with the error logged at
// error severity and never leaked verbatim to the client.
func NewRouter(deps *Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := &handlers{deps: deps}

	r.GET("/health", h.health)
	r.POST("/tasks/plan", h.planTask)
	r.POST("/tasks", h.createTask)
	r.GET("/tasks", h.listTasks)
	r.GET("/tasks/:id", h.getTask)
	r.PUT("/tasks/:id", h.updateTask)
	r.DELETE("/tasks/:id", h.deleteTask)

	return r
}

type handlers struct {
	deps *Deps
}

func (h *handlers) health(c *gin.Context) {
	body := gin.H{
		"status":     "ok",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"instanceId": h.deps.Config.InstanceID,
	}
	if h.deps.LLM != nil {
		providers := make(map[string]string)
		for name, status := range h.deps.LLM.GetProviderStatus() {
			providers[name] = status.String()
		}
		body["providers"] = providers
	}
	c.JSON(http.StatusOK, body)
}

type planTaskRequest struct {
	Description string `json:"description" binding:"required"`
	Context     string `json:"context"`
}

func (h *handlers) planTask(c *gin.Context) {
	var req planTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, agent.NewValidationError("invalid request body", err))
		return
	}

	task, err := h.deps.Planner.Plan(c.Request.Context(), req.Description, req.Context)
	if err != nil {
		respondError(c, err)
		return
	}

	if task.Status == agent.StatusPlanned {
		mainTaskID := task.ID
		go func() {
			ctx := context.Background()
			if err := h.deps.Executor.Run(ctx, mainTaskID); err != nil {
				h.deps.Logger.Error(ctx, "plan execution failed", agent.F("taskId", mainTaskID), agent.F("error", err.Error()))
			}
		}()
	}

	c.JSON(http.StatusOK, task)
}

type createTaskRequest struct {
	Name          string                 `json:"name" binding:"required"`
	Description   string                 `json:"description"`
	ParentID      string                 `json:"parentId"`
	Dependencies  []string               `json:"dependencies"`
	AssignedTools []string               `json:"assignedTools"`
	Metadata      map[string]interface{} `json:"metadata"`
}

func (h *handlers) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, agent.NewValidationError("invalid request body", err))
		return
	}

	task, err := h.deps.Manager.CreateTask(c.Request.Context(), agent.TaskCreate{
		Name:          req.Name,
		Description:   req.Description,
		ParentID:      req.ParentID,
		Dependencies:  req.Dependencies,
		AssignedTools: req.AssignedTools,
		Metadata:      req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *handlers) listTasks(c *gin.Context) {
	var tasks []*agent.Task
	switch {
	case c.Query("parentId") != "":
		tasks = h.deps.Manager.GetSubtasks(c.Query("parentId"))
	case c.Query("status") != "":
		tasks = h.deps.Manager.GetTasksByStatus(agent.Status(c.Query("status")))
	default:
		tasks = h.deps.Manager.GetAllTasks()
	}
	if status := c.Query("status"); status != "" && c.Query("parentId") != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.Status == agent.Status(status) {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	if tasks == nil {
		tasks = []*agent.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *handlers) getTask(c *gin.Context) {
	task := h.deps.Manager.GetTask(c.Param("id"))
	if task == nil {
		respondError(c, agent.NewTaskNotFoundError(c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, task)
}

type updateTaskRequest struct {
	Status   *agent.Status `json:"status"`
	Progress *float64      `json:"progress"`
	Result   interface{}   `json:"result"`
}

func (h *handlers) updateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, agent.NewValidationError("invalid request body", err))
		return
	}

	id := c.Param("id")
	if h.deps.Manager.GetTask(id) == nil {
		respondError(c, agent.NewTaskNotFoundError(id))
		return
	}

	task, err := h.deps.Manager.UpdateTask(c.Request.Context(), id, func(t *agent.Task) {
		if req.Status != nil {
			t.Status = *req.Status
		}
		if req.Progress != nil {
			t.Progress = *req.Progress
		}
		if req.Result != nil {
			t.Result = req.Result
		}
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *handlers) deleteTask(c *gin.Context) {
	id := c.Param("id")
	if err := h.deps.Manager.DeleteTask(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondError maps a CodedError to the HTTP status its category
// implies; any other error is logged and returned as an opaque 500.
func respondError(c *gin.Context, err error) {
	var coded *agent.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case agent.ErrCodeValidation, agent.ErrCodeInvalidConfig:
			c.JSON(http.StatusBadRequest, gin.H{"error": coded.Message, "code": coded.Code})
		case agent.ErrCodeTaskNotFound, agent.ErrCodeToolNotFound, agent.ErrCodeMethodNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": coded.Message, "code": coded.Code})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": coded.Code})
		}
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": agent.ErrCodeFatal})
}
