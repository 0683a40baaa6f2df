package handlers

import (
	"encoding/json"
	"net/http"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/theoneeye/oneeye/common/models"
	"github.com/theoneeye/oneeye/common/repository"
	"github.com/theoneeye/oneeye/engine"
	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/node"
)

// WorkflowHandler exposes workflow CRUD and the engine lifecycle surface
type WorkflowHandler struct {
	repo   *repository.WorkflowRepository
	engine *engine.Engine
	log    Logger
}

// NewWorkflowHandler creates a workflow handler
func NewWorkflowHandler(repo *repository.WorkflowRepository, eng *engine.Engine, log Logger) *WorkflowHandler {
	return &WorkflowHandler{
		repo:   repo,
		engine: eng,
		log:    log,
	}
}

// CreateWorkflowRequest is the POST /api/v1/workflows payload
type CreateWorkflowRequest struct {
	Name        string          `json:"name"`
	Description json.RawMessage `json:"description"`
}

// Create stores a new workflow description
// POST /api/v1/workflows
func (h *WorkflowHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, errorBody("name is required"))
	}
	if len(req.Description) == 0 {
		return c.JSON(http.StatusBadRequest, errorBody("description is required"))
	}

	// Reject descriptions that do not parse before persisting them
	if _, err := graph.ParseDescription(req.Description); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	wf := &models.Workflow{
		WorkflowID:  uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   userID(c),
	}
	if err := h.repo.Create(ctx, wf); err != nil {
		h.log.Error("failed to create workflow", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to create workflow"))
	}

	return c.JSON(http.StatusCreated, wf)
}

// Get returns a stored workflow
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c echo.Context) error {
	wf, ok := h.load(c)
	if !ok {
		return nil
	}
	return c.JSON(http.StatusOK, wf)
}

// List returns every stored workflow
// GET /api/v1/workflows
func (h *WorkflowHandler) List(c echo.Context) error {
	workflows, err := h.repo.List(c.Request().Context())
	if err != nil {
		h.log.Error("failed to list workflows", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to list workflows"))
	}
	return c.JSON(http.StatusOK, map[string]any{"workflows": workflows})
}

// Patch applies an RFC 6902 patch to the stored description
// PATCH /api/v1/workflows/:id
func (h *WorkflowHandler) Patch(c echo.Context) error {
	ctx := c.Request().Context()
	wf, ok := h.load(c)
	if !ok {
		return nil
	}

	var rawPatch json.RawMessage
	if err := c.Bind(&rawPatch); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid patch body"))
	}

	patch, err := jsonpatch.DecodePatch(rawPatch)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("malformed json patch"))
	}

	patched, err := patch.Apply(wf.Description)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	// The patched description must still parse
	if _, err := graph.ParseDescription(patched); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	if err := h.repo.UpdateDescription(ctx, wf.WorkflowID, patched); err != nil {
		h.log.Error("failed to update workflow", "workflow_id", wf.WorkflowID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to update workflow"))
	}

	wf.Description = patched
	return c.JSON(http.StatusOK, wf)
}

// Delete removes a stored workflow
// DELETE /api/v1/workflows/:id
func (h *WorkflowHandler) Delete(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid workflow id"))
	}
	if err := h.repo.Delete(c.Request().Context(), workflowID); err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, errorBody("workflow not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("failed to delete workflow"))
	}
	return c.NoContent(http.StatusNoContent)
}

// Start begins executing a stored workflow
// POST /api/v1/workflows/:id/start
func (h *WorkflowHandler) Start(c echo.Context) error {
	ctx := c.Request().Context()
	wf, ok := h.load(c)
	if !ok {
		return nil
	}

	desc, err := graph.ParseDescription(wf.Description)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	run, err := h.engine.Start(ctx, wf.WorkflowID.String(), desc)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody(err.Error()))
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"workflow_id": run.WorkflowID,
		"mode":        run.Mode,
		"status":      "started",
	})
}

// Stop requests a graceful stop
// POST /api/v1/workflows/:id/stop
func (h *WorkflowHandler) Stop(c echo.Context) error {
	if err := h.engine.Stop(c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, errorBody(err.Error()))
	}
	return c.JSON(http.StatusAccepted, map[string]any{"status": "stopping"})
}

// ForceStop cancels a run immediately
// POST /api/v1/workflows/:id/force-stop
func (h *WorkflowHandler) ForceStop(c echo.Context) error {
	if err := h.engine.ForceStop(c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, errorBody(err.Error()))
	}
	return c.JSON(http.StatusAccepted, map[string]any{"status": "stopped"})
}

// Status returns the execution snapshot of a running workflow
// GET /api/v1/workflows/:id/status
func (h *WorkflowHandler) Status(c echo.Context) error {
	snapshot, err := h.engine.Status(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, snapshot)
}

// ExecuteNodeRequest is the single-node development-mode payload
type ExecuteNodeRequest struct {
	Input map[string]any `json:"input"`
}

// ExecuteNode runs one node in development mode
// POST /api/v1/workflows/:id/nodes/:nodeID/execute
func (h *WorkflowHandler) ExecuteNode(c echo.Context) error {
	ctx := c.Request().Context()
	wf, ok := h.load(c)
	if !ok {
		return nil
	}

	desc, err := graph.ParseDescription(wf.Description)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	var req ExecuteNodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	nodeID := c.Param("nodeID")
	var input *node.Output
	if req.Input != nil {
		input = node.NewOutput(nodeID)
		input.Data = req.Input
	}

	out, err := h.engine.ExecuteNode(ctx, desc, nodeID, input)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, out)
}

// load fetches the workflow named by the :id param. On failure the
// response is already written and ok is false.
func (h *WorkflowHandler) load(c echo.Context) (*models.Workflow, bool) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid workflow id"))
		return nil, false
	}

	wf, err := h.repo.GetByID(c.Request().Context(), workflowID)
	if err != nil {
		if err == repository.ErrNotFound {
			c.JSON(http.StatusNotFound, errorBody("workflow not found"))
			return nil, false
		}
		h.log.Error("failed to load workflow", "workflow_id", workflowID, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody("failed to load workflow"))
		return nil, false
	}
	return wf, true
}

func errorBody(msg string) map[string]any {
	return map[string]any{"error": msg}
}

func userID(c echo.Context) string {
	if id := c.Request().Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}
