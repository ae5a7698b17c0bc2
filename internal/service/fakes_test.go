package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/todo-backend/internal/model"
	"github.com/iliyamo/todo-backend/internal/queue"
	"github.com/iliyamo/todo-backend/internal/repository"
)

// memUsers is an in-memory UserStore.
type memUsers struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]model.User
	err    error // returned by every call when set
	setErr error // returned by SetRefreshToken only
}

func newMemUsers() *memUsers {
	return &memUsers{rows: map[uint64]model.User{}}
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, r := range m.rows {
		if r.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	m.nextID++
	now := time.Now().UTC()
	u.ID, u.CreatedAt, u.UpdatedAt = m.nextID, now, now
	m.rows[u.ID] = *u
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.User{}, m.err
	}
	for _, r := range m.rows {
		if r.Email == email {
			return r, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (m *memUsers) SetRefreshToken(_ context.Context, id uint64, h *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.setErr != nil {
		return m.setErr
	}
	r, ok := m.rows[id]
	if !ok {
		return nil
	}
	r.RefreshTokenHash = h
	m.rows[id] = r
	return nil
}

func (m *memUsers) RotateRefreshToken(_ context.Context, id uint64, oldHash, newHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	r, ok := m.rows[id]
	if !ok || r.RefreshTokenHash == nil || *r.RefreshTokenHash != oldHash {
		return false, nil
	}
	r.RefreshTokenHash = &newHash
	m.rows[id] = r
	return true, nil
}

func (m *memUsers) stored(id uint64) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].RefreshTokenHash
}

// memTodos is an in-memory TodoStore.
type memTodos struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]model.Todo
	err    error
}

func newMemTodos() *memTodos {
	return &memTodos{rows: map[uint64]model.Todo{}}
}

func (m *memTodos) Create(_ context.Context, t *model.Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.nextID++
	now := time.Now().UTC()
	t.ID, t.CreatedAt, t.UpdatedAt = m.nextID, now, now
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	m.rows[t.ID] = *t
	return nil
}

func (m *memTodos) GetByID(_ context.Context, id uint64) (model.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Todo{}, m.err
	}
	t, ok := m.rows[id]
	if !ok {
		return model.Todo{}, repository.ErrTodoNotFound
	}
	return t, nil
}

func (m *memTodos) List(_ context.Context, f model.TodoFilter) ([]model.Todo, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	var match []model.Todo
	for _, t := range m.rows {
		if t.UserID != f.UserID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.Priority != nil && (t.Priority == nil || *t.Priority != *f.Priority) {
			continue
		}
		match = append(match, t)
	}
	sort.Slice(match, func(i, j int) bool { return match[i].ID < match[j].ID })
	total := int64(len(match))
	if f.Offset >= len(match) {
		return []model.Todo{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(match) {
		end = len(match)
	}
	return match[f.Offset:end], total, nil
}

func (m *memTodos) UpdateStatus(_ context.Context, id, ownerID uint64, s model.TodoStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	t, ok := m.rows[id]
	if !ok || t.UserID != ownerID {
		return nil
	}
	t.Status = s
	m.rows[id] = t
	return nil
}

func (m *memTodos) Update(_ context.Context, id, ownerID uint64, p model.TodoPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	t, ok := m.rows[id]
	if !ok || t.UserID != ownerID {
		return nil
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = p.Description
	}
	if p.Priority != nil {
		t.Priority = p.Priority
	}
	m.rows[id] = t
	return nil
}

func (m *memTodos) Delete(_ context.Context, id, ownerID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	t, ok := m.rows[id]
	if !ok || t.UserID != ownerID {
		return repository.ErrTodoNotFound
	}
	delete(m.rows, id)
	return nil
}

// recordingPublisher keeps every event it is given.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.TodoEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.TodoEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

var errStoreDown = errors.New("connection refused")
