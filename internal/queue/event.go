// Package queue defines the todo event payloads exchanged over the message
// broker and the consumer that records them.
package queue

// TodoEventsQueue is the durable queue all todo events are routed to.
const TodoEventsQueue = "todo.events"

// Event types.
const (
	EventTodoCreated       = "todo.created"
	EventTodoStatusChanged = "todo.status_changed"
	EventTodoUpdated       = "todo.updated"
	EventTodoDeleted       = "todo.deleted"
)

// TodoEvent is published after a todo mutation commits.  It carries enough
// for downstream consumers to log or notify without querying the database.
type TodoEvent struct {
	Type       string `json:"type"`
	TodoID     uint64 `json:"todo_id"`
	UserID     uint64 `json:"user_id"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
