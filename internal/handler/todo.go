package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/todo-backend/internal/middleware"
	"github.com/iliyamo/todo-backend/internal/model"
	"github.com/iliyamo/todo-backend/internal/service"
)

// Todos is the owner-scoped todo service.
type Todos interface {
	Create(ctx context.Context, ownerID uint64, in service.CreateTodoInput) (model.Todo, error)
	List(ctx context.Context, ownerID uint64, f service.ListFilter) (service.TodoPage, error)
	ChangeStatus(ctx context.Context, ownerID, todoID uint64, status model.TodoStatus) (model.Todo, error)
	UpdateFields(ctx context.Context, ownerID, todoID uint64, in service.UpdateTodoInput) (model.Todo, error)
	Delete(ctx context.Context, ownerID, todoID uint64) error
}

// TodoHandler serves /todos.  Every route runs behind JWTAuth.
type TodoHandler struct {
	Todos Todos
}

// NewTodoHandler returns the /todos endpoints backed by t.
func NewTodoHandler(t Todos) *TodoHandler {
	return &TodoHandler{Todos: t}
}

const (
	defaultPage  = 1
	defaultLimit = 10
)

type createTodoReq struct {
	Title       string            `json:"title" validate:"required,max=128"`
	Description *string           `json:"description"`
	Status      *model.TodoStatus `json:"status" validate:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED"`
	Priority    *int              `json:"priority" validate:"omitempty,min=1,max=3"`
}

type updateTodoReq struct {
	Title       *string `json:"title" validate:"omitempty,max=128"`
	Description *string `json:"description"`
	Priority    *int    `json:"priority" validate:"omitempty,min=1,max=3"`
}

type statusReq struct {
	Status model.TodoStatus `json:"status" validate:"required,oneof=PENDING IN_PROGRESS COMPLETED"`
}

// Create adds a todo owned by the caller.
func (h *TodoHandler) Create(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req createTodoReq
	if err := bindValid(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Todos.Create(ctx, id.ID, service.CreateTodoInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

// List: GET /todos?status=&priority=&page=&limit=
func (h *TodoHandler) List(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	f := service.ListFilter{Page: defaultPage, Limit: defaultLimit}
	if err := echo.QueryParamsBinder(c).
		Int("page", &f.Page).
		Int("limit", &f.Limit).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "page and limit must be integers")
	}
	if s := c.QueryParam("status"); s != "" {
		st := model.TodoStatus(s)
		f.Status = &st
	}
	if p := c.QueryParam("priority"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "priority must be an integer")
		}
		f.Priority = &n
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	page, err := h.Todos.List(ctx, id.ID, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// ChangeStatus: PATCH /todos/status/:id
func (h *TodoHandler) ChangeStatus(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	todoID, err := pathID(c)
	if err != nil {
		return err
	}
	var req statusReq
	if err := bindValid(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Todos.ChangeStatus(ctx, id.ID, todoID, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// Update: PATCH /todos/:id
func (h *TodoHandler) Update(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	todoID, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateTodoReq
	if err := bindValid(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Todos.UpdateFields(ctx, id.ID, todoID, service.UpdateTodoInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// Delete: DELETE /todos/:id
func (h *TodoHandler) Delete(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	todoID, err := pathID(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Todos.Delete(ctx, id.ID, todoID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func caller(c echo.Context) (model.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return model.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}
	return id, nil
}

func pathID(c echo.Context) (uint64, error) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	return n, nil
}
