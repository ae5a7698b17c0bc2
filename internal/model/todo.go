package model

import "time"

// TodoStatus is the closed set of todo states.
type TodoStatus string

const (
	StatusPending    TodoStatus = "PENDING"
	StatusInProgress TodoStatus = "IN_PROGRESS"
	StatusCompleted  TodoStatus = "COMPLETED"
)

// Valid reports whether s is one of the known statuses.
func (s TodoStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

const (
	TitleMaxLen = 128
	PriorityMin = 1
	PriorityMax = 3
)

// Todo mirrors the `todos` table.  UserID is fixed at creation.
type Todo struct {
	ID          uint64     `json:"id"`
	UserID      uint64     `json:"userId"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      TodoStatus `json:"status"`
	Priority    *int       `json:"priority"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TodoFilter selects an owner's todos.  Nil fields are not filtered on.
type TodoFilter struct {
	UserID   uint64
	Status   *TodoStatus
	Priority *int
	Offset   int
	Limit    int
}

// TodoPatch lists the fields to overwrite.  Nil fields are left untouched.
type TodoPatch struct {
	Title       *string
	Description *string
	Priority    *int
}

// Empty reports whether the patch changes nothing.
func (p TodoPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil
}
