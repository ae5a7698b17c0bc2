package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/iliyamo/todo-backend/internal/model"
	"github.com/iliyamo/todo-backend/internal/queue"
	"github.com/iliyamo/todo-backend/internal/repository"
)

// TodoStore is the persistence the todo service needs.
type TodoStore interface {
	Create(ctx context.Context, t *model.Todo) error
	GetByID(ctx context.Context, id uint64) (model.Todo, error)
	List(ctx context.Context, f model.TodoFilter) ([]model.Todo, int64, error)
	UpdateStatus(ctx context.Context, id, ownerID uint64, status model.TodoStatus) error
	Update(ctx context.Context, id, ownerID uint64, p model.TodoPatch) error
	Delete(ctx context.Context, id, ownerID uint64) error
}

// CreateTodoInput carries the fields of a new todo.
type CreateTodoInput struct {
	Title       string
	Description *string
	Status      *model.TodoStatus
	Priority    *int
}

// UpdateTodoInput carries a partial update.  Status is changed through
// ChangeStatus only.
type UpdateTodoInput struct {
	Title       *string
	Description *string
	Priority    *int
}

// ListFilter selects and paginates the caller's todos.
type ListFilter struct {
	Status   *model.TodoStatus
	Priority *int
	Page     int
	Limit    int
}

// TodoPage is one page of todos plus the unpaginated match count.
type TodoPage struct {
	Todos      []model.Todo `json:"todos"`
	TotalCount int64        `json:"totalCount"`
}

const msgNoPermission = "You do not have permission to access this todo."

// TodoService performs todo CRUD for one owner at a time.  Every mutation
// first checks that the todo exists and belongs to the caller.
type TodoService struct {
	todos  TodoStore
	events EventPublisher
	log    zerolog.Logger
	now    func() time.Time
}

// NewTodoService returns a service backed by todos.  A nil publisher drops
// events.
func NewTodoService(todos TodoStore, events EventPublisher, log zerolog.Logger) *TodoService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &TodoService{todos: todos, events: events, log: log, now: time.Now}
}

// Create inserts a todo owned by ownerID.
func (s *TodoService) Create(ctx context.Context, ownerID uint64, in CreateTodoInput) (model.Todo, error) {
	title := strings.TrimSpace(in.Title)
	if err := checkTitle(title); err != nil {
		return model.Todo{}, err
	}
	if err := checkPriority(in.Priority); err != nil {
		return model.Todo{}, err
	}
	t := model.Todo{UserID: ownerID, Title: title, Description: in.Description, Priority: in.Priority, Status: model.StatusPending}
	if in.Status != nil {
		if !in.Status.Valid() {
			return model.Todo{}, invalidInput("status must be a valid TodoStatus")
		}
		t.Status = *in.Status
	}
	if err := s.todos.Create(ctx, &t); err != nil {
		return model.Todo{}, s.storeFailure("An error occurred while creating the todo", "create todo", err)
	}
	s.publish(ctx, queue.EventTodoCreated, t)
	return t, nil
}

// List returns the caller's todos matching every given filter.
func (s *TodoService) List(ctx context.Context, ownerID uint64, f ListFilter) (TodoPage, error) {
	if f.Page < 1 {
		return TodoPage{}, invalidInput("page must be greater than or equal to 1")
	}
	if f.Limit < 1 {
		return TodoPage{}, invalidInput("limit must be greater than or equal to 1")
	}
	// (page-1)*limit has to fit the OFFSET clause.
	if f.Page-1 > math.MaxInt/f.Limit {
		return TodoPage{}, invalidInput("page is out of range for the given limit")
	}
	if f.Status != nil && !f.Status.Valid() {
		return TodoPage{}, invalidInput("status must be a valid TodoStatus")
	}
	if err := checkPriority(f.Priority); err != nil {
		return TodoPage{}, err
	}
	items, total, err := s.todos.List(ctx, model.TodoFilter{
		UserID:   ownerID,
		Status:   f.Status,
		Priority: f.Priority,
		Offset:   (f.Page - 1) * f.Limit,
		Limit:    f.Limit,
	})
	if err != nil {
		return TodoPage{}, s.storeFailure("An error occurred while retrieving todos", "list todos", err)
	}
	if items == nil {
		items = []model.Todo{}
	}
	return TodoPage{Todos: items, TotalCount: total}, nil
}

// ChangeStatus sets the status of one of the caller's todos.
func (s *TodoService) ChangeStatus(ctx context.Context, ownerID, todoID uint64, status model.TodoStatus) (model.Todo, error) {
	if !status.Valid() {
		return model.Todo{}, invalidInput("status must be a valid TodoStatus")
	}
	if _, err := s.authorize(ctx, ownerID, todoID); err != nil {
		return model.Todo{}, err
	}
	const msg = "An error occurred while updating the todo status."
	if err := s.todos.UpdateStatus(ctx, todoID, ownerID, status); err != nil {
		return model.Todo{}, s.storeFailure(msg, "update todo status", err)
	}
	t, err := s.reload(ctx, todoID, msg)
	if err != nil {
		return model.Todo{}, err
	}
	s.publish(ctx, queue.EventTodoStatusChanged, t)
	return t, nil
}

// UpdateFields applies a partial update to one of the caller's todos.
func (s *TodoService) UpdateFields(ctx context.Context, ownerID, todoID uint64, in UpdateTodoInput) (model.Todo, error) {
	patch := model.TodoPatch{Description: in.Description, Priority: in.Priority}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := checkTitle(title); err != nil {
			return model.Todo{}, err
		}
		patch.Title = &title
	}
	if err := checkPriority(in.Priority); err != nil {
		return model.Todo{}, err
	}
	current, err := s.authorize(ctx, ownerID, todoID)
	if err != nil {
		return model.Todo{}, err
	}
	if patch.Empty() {
		return current, nil
	}
	const msg = "An error occurred while updating the todo."
	if err := s.todos.Update(ctx, todoID, ownerID, patch); err != nil {
		return model.Todo{}, s.storeFailure(msg, "update todo", err)
	}
	t, err := s.reload(ctx, todoID, msg)
	if err != nil {
		return model.Todo{}, err
	}
	s.publish(ctx, queue.EventTodoUpdated, t)
	return t, nil
}

// Delete removes one of the caller's todos.
func (s *TodoService) Delete(ctx context.Context, ownerID, todoID uint64) error {
	t, err := s.authorize(ctx, ownerID, todoID)
	if err != nil {
		return err
	}
	if err := s.todos.Delete(ctx, todoID, ownerID); err != nil {
		if errors.Is(err, repository.ErrTodoNotFound) {
			return notFound(todoID)
		}
		return s.storeFailure("An error occurred while deleting the todo.", "delete todo", err)
	}
	s.publish(ctx, queue.EventTodoDeleted, t)
	return nil
}

// authorize resolves the todo and checks it belongs to ownerID.  Its
// NotFound and Forbidden errors are returned to callers as is.
func (s *TodoService) authorize(ctx context.Context, ownerID, todoID uint64) (model.Todo, error) {
	t, err := s.todos.GetByID(ctx, todoID)
	if err != nil {
		if errors.Is(err, repository.ErrTodoNotFound) {
			return model.Todo{}, notFound(todoID)
		}
		return model.Todo{}, s.storeFailure("An error occurred while retrieving the todo.", "get todo", err)
	}
	if t.UserID != ownerID {
		return model.Todo{}, newError(KindForbidden, msgNoPermission, nil)
	}
	return t, nil
}

// reload reads a todo back after a write.  A row deleted in between is
// reported as NotFound.
func (s *TodoService) reload(ctx context.Context, todoID uint64, msg string) (model.Todo, error) {
	t, err := s.todos.GetByID(ctx, todoID)
	if err != nil {
		if errors.Is(err, repository.ErrTodoNotFound) {
			return model.Todo{}, notFound(todoID)
		}
		return model.Todo{}, s.storeFailure(msg, "reload todo", err)
	}
	return t, nil
}

func (s *TodoService) storeFailure(msg, op string, err error) *Error {
	if errors.Is(err, repository.ErrInvalidRecord) {
		return newError(KindInvalidInput, "Validation error", err)
	}
	s.log.Error().Err(err).Str("op", op).Msg("todo store failure")
	return internal(msg, err)
}

// publish is best effort: a broker outage never fails the request.
func (s *TodoService) publish(ctx context.Context, typ string, t model.Todo) {
	ev := queue.TodoEvent{
		Type:       typ,
		TodoID:     t.ID,
		UserID:     t.UserID,
		Title:      t.Title,
		Status:     string(t.Status),
		OccurredAt: s.now().UTC().Format(time.RFC3339),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.events.Publish(pubCtx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", typ).Uint64("todo_id", t.ID).Msg("publish todo event failed")
	}
}

func notFound(todoID uint64) *Error {
	return newError(KindNotFound, fmt.Sprintf("Todo with ID %d not found.", todoID), nil)
}

func checkTitle(title string) error {
	if title == "" {
		return invalidInput("title should not be empty")
	}
	if utf8.RuneCountInString(title) > model.TitleMaxLen {
		return invalidInput(fmt.Sprintf("title must be at most %d characters", model.TitleMaxLen))
	}
	return nil
}

func checkPriority(p *int) error {
	if p != nil && (*p < model.PriorityMin || *p > model.PriorityMax) {
		return invalidInput(fmt.Sprintf("priority must be between %d and %d", model.PriorityMin, model.PriorityMax))
	}
	return nil
}
