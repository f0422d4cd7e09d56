// Package tasks tracks background scraper jobs for the dashboard. The
// registry is an explicitly constructed component with an injected
// persistence path, never a process-wide singleton.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/tools"
	"github.com/spf13/afero"
	"github.com/teris-io/shortid"
)

type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Task is one tracked background job.
type Task struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     State      `json:"status"`
	Message    string     `json:"message"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Manager registers background jobs, persists their status as JSON at the
// injected path, and runs them fire-and-forget through tools.Dispatch.
type Manager struct {
	mu         sync.Mutex
	fs         afero.Fs
	statusPath string
	tasks      map[string]*Task
}

func NewManager(fs afero.Fs, statusPath string) *Manager {
	m := &Manager{
		fs:         fs,
		statusPath: statusPath,
		tasks:      make(map[string]*Task),
	}
	m.load()
	return m
}

func (m *Manager) load() {
	data, err := afero.ReadFile(m.fs, m.statusPath)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := json.Unmarshal(data, &m.tasks); err != nil {
		log.Printf("[tasks] corrupt status file %s: %v", m.statusPath, err)
		m.tasks = make(map[string]*Task)
	}
}

// save persists the registry; callers hold the mutex.
func (m *Manager) save() {
	if dir := filepath.Dir(m.statusPath); dir != "." {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			log.Printf("[tasks] create status dir: %v", err)
			return
		}
	}
	data, err := json.MarshalIndent(m.tasks, "", "  ")
	if err != nil {
		log.Printf("[tasks] marshal status: %v", err)
		return
	}
	if err := afero.WriteFile(m.fs, m.statusPath, data, 0o644); err != nil {
		log.Printf("[tasks] write status file: %v", err)
	}
}

// Start registers a new task of the given kind and launches fn in the
// background. The returned id can be polled through Get.
func (m *Manager) Start(kind string, fn func(ctx context.Context) error) (string, error) {
	sid, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	id := fmt.Sprintf("%s_%s", kind, sid)

	m.mu.Lock()
	m.tasks[id] = &Task{
		ID:        id,
		Kind:      kind,
		Status:    StateRunning,
		Message:   "Running...",
		StartedAt: time.Now(),
	}
	m.save()
	m.mu.Unlock()

	tools.Dispatch(context.Background(), kind, func(ctx context.Context) error {
		err := fn(ctx)
		m.finish(id, err)
		return err
	})
	return id, nil
}

func (m *Manager) finish(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return
	}
	now := time.Now()
	task.FinishedAt = &now
	if err != nil {
		task.Status = StateFailed
		task.Message = "Failed"
		task.Error = err.Error()
	} else {
		task.Status = StateCompleted
		task.Message = "Completed successfully"
	}
	m.save()
}

// Get returns a copy of one task, nil when unknown.
func (m *Manager) Get(id string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil
	}
	copied := *task
	return &copied
}

// All returns copies of every tracked task.
func (m *Manager) All() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, *task)
	}
	return out
}

// Latest returns the most recently started task of a kind, nil when none.
func (m *Manager) Latest(kind string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *Task
	for _, task := range m.tasks {
		if task.Kind != kind {
			continue
		}
		if latest == nil || task.StartedAt.After(latest.StartedAt) {
			latest = task
		}
	}
	if latest == nil {
		return nil
	}
	copied := *latest
	return &copied
}
