package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/todo-backend/internal/model"
)

const todoColumns = "id, user_id, title, description, status, priority, created_at, updated_at"

// TodoRepo encapsulates all queries on the todos table.  Ownership is
// decided by the service layer; the user_id predicates on writes only make
// sure a write can never land on another owner's row.
type TodoRepo struct {
	db *sql.DB
}

// NewTodoRepo returns a repository reading and writing the todos table.
func NewTodoRepo(db *sql.DB) *TodoRepo {
	return &TodoRepo{db: db}
}

// Create inserts a todo and fills in ID, status default and timestamps.
func (r *TodoRepo) Create(ctx context.Context, t *model.Todo) error {
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO todos (user_id, title, description, status, priority) VALUES (?,?,?,?,?)",
		t.UserID, t.Title, nullString(t.Description), string(t.Status), nullInt(t.Priority))
	if err != nil {
		if isInvalidRecord(err) {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return fmt.Errorf("insert todo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*t = created
	return nil
}

// GetByID fetches a todo regardless of owner.
func (r *TodoRepo) GetByID(ctx context.Context, id uint64) (model.Todo, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+todoColumns+" FROM todos WHERE id = ?", id)
	t, err := scanTodo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Todo{}, ErrTodoNotFound
		}
		return model.Todo{}, fmt.Errorf("select todo: %w", err)
	}
	return t, nil
}

// List returns one page of the owner's todos matching the filter and the
// total number of matches ignoring pagination.
func (r *TodoRepo) List(ctx context.Context, f model.TodoFilter) ([]model.Todo, int64, error) {
	where := []string{"user_id = ?"}
	args := []any{f.UserID}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Priority != nil {
		where = append(where, "priority = ?")
		args = append(args, *f.Priority)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM todos WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count todos: %w", err)
	}

	dataArgs := append(append([]any{}, args...), f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+todoColumns+" FROM todos WHERE "+cond+" ORDER BY id LIMIT ? OFFSET ?",
		dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	out := []model.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan todo: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list todos: %w", err)
	}
	return out, total, nil
}

// UpdateStatus sets the status of the owner's todo.
func (r *TodoRepo) UpdateStatus(ctx context.Context, id, ownerID uint64, status model.TodoStatus) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE todos SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?",
		string(status), id, ownerID)
	if err != nil {
		if isInvalidRecord(err) {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return fmt.Errorf("update todo status: %w", err)
	}
	return nil
}

// Update applies the non-nil fields of the patch to the owner's todo.
func (r *TodoRepo) Update(ctx context.Context, id, ownerID uint64, p model.TodoPatch) error {
	if p.Empty() {
		return nil
	}
	set := []string{}
	args := []any{}
	if p.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *p.Description)
	}
	if p.Priority != nil {
		set = append(set, "priority = ?")
		args = append(args, *p.Priority)
	}
	set = append(set, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id, ownerID)

	_, err := r.db.ExecContext(ctx,
		"UPDATE todos SET "+strings.Join(set, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		if isInvalidRecord(err) {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return fmt.Errorf("update todo: %w", err)
	}
	return nil
}

// Delete removes the owner's todo.  It returns ErrTodoNotFound when no
// row was removed.
func (r *TodoRepo) Delete(ctx context.Context, id, ownerID uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM todos WHERE id = ? AND user_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTodoNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(s scanner) (model.Todo, error) {
	var (
		t        model.Todo
		desc     sql.NullString
		status   string
		priority sql.NullInt64
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.Title, &desc, &status, &priority, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Todo{}, err
	}
	t.Status = model.TodoStatus(status)
	if desc.Valid {
		t.Description = &desc.String
	}
	if priority.Valid {
		p := int(priority.Int64)
		t.Priority = &p
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
