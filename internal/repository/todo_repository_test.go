package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/todo-backend/internal/model"
)

var todoCols = []string{"id", "user_id", "title", "description", "status", "priority", "created_at", "updated_at"}

func TestTodoRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepo(db)
	now := time.Now().UTC()

	mock.ExpectExec(`^INSERT INTO todos \(user_id, title, description, status, priority\) VALUES \(\?,\?,\?,\?,\?\)$`).
		WithArgs(1, "Conquer the galaxy", nil, "PENDING", 2).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectQuery(`^SELECT .+ FROM todos WHERE id = \?$`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(todoCols).
			AddRow(10, 1, "Conquer the galaxy", nil, "PENDING", 2, now, now))

	prio := 2
	td := &model.Todo{UserID: 1, Title: "Conquer the galaxy", Priority: &prio}
	require.NoError(t, repo.Create(context.Background(), td))

	assert.Equal(t, uint64(10), td.ID)
	assert.Equal(t, model.StatusPending, td.Status)
	assert.Nil(t, td.Description)
	require.NotNil(t, td.Priority)
	assert.Equal(t, 2, *td.Priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTodoRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepo(db)

	mock.ExpectQuery(`^SELECT .+ FROM todos WHERE id = \?$`).
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrTodoNotFound)
}

func TestTodoRepo_List_Filters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepo(db)
	now := time.Now().UTC()
	status := model.StatusPending
	prio := 1

	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM todos WHERE user_id = \? AND status = \? AND priority = \?$`).
		WithArgs(5, "PENDING", 1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`^SELECT .+ FROM todos WHERE user_id = \? AND status = \? AND priority = \? ORDER BY id LIMIT \? OFFSET \?$`).
		WithArgs(5, "PENDING", 1, 10, 10).
		WillReturnRows(sqlmock.NewRows(todoCols).
			AddRow(11, 5, "a", "desc", "PENDING", 1, now, now).
			AddRow(12, 5, "b", nil, "PENDING", 1, now, now))

	items, total, err := repo.List(context.Background(), model.TodoFilter{
		UserID: 5, Status: &status, Priority: &prio, Offset: 10, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Description)
	assert.Equal(t, "desc", *items[0].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTodoRepo_List_OwnerOnly(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepo(db)

	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM todos WHERE user_id = \?$`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`^SELECT .+ FROM todos WHERE user_id = \? ORDER BY id LIMIT \? OFFSET \?$`).
		WithArgs(5, 10, 0).
		WillReturnRows(sqlmock.NewRows(todoCols))

	items, total, err := repo.List(context.Background(), model.TodoFilter{UserID: 5, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
	assert.NotNil(t, items)
}

func TestTodoRepo_List_CountError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepo(db)

	mock.ExpectQuery(`^SELECT COUNT`).WillReturnError(errors.New("db down"))

	_, _, err := repo.List(context.Background(), model.TodoFilter{UserID: 5, Limit: 10})
	assert.Error(t, err)
}

func TestTodoRepo_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepo(db)

	mock.ExpectExec(`^UPDATE todos SET status = \?, updated_at = CURRENT_TIMESTAMP WHERE id = \? AND user_id = \?$`).
		WithArgs("COMPLETED", 4, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), 4, 1, model.StatusCompleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTodoRepo_Update_OnlySetFields(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepo(db)
	title := "new title"
	prio := 3

	mock.ExpectExec(`^UPDATE todos SET title = \?, priority = \?, updated_at = CURRENT_TIMESTAMP WHERE id = \? AND user_id = \?$`).
		WithArgs("new title", 3, 4, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), 4, 1, model.TodoPatch{Title: &title, Priority: &prio}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTodoRepo_Update_EmptyPatchIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepo(db)

	require.NoError(t, repo.Update(context.Background(), 4, 1, model.TodoPatch{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTodoRepo_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepo(db)

	q := `^DELETE FROM todos WHERE id = \? AND user_id = \?$`
	mock.ExpectExec(q).WithArgs(4, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(4, 1).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), 4, 1))
	assert.ErrorIs(t, repo.Delete(context.Background(), 4, 1), ErrTodoNotFound)
}
