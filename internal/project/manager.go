// Package project manages the project registry: the global list of
// projects, the active-project pointer, and per-project teardown across
// the KV store and vector index.
package project

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"forest/internal/kvstore"
	"forest/internal/logging"
	"forest/internal/types"
	"forest/internal/vector"
)

const registryFile = "config.json"

// Record is one registered project.
type Record struct {
	ID           string    `json:"id"`
	Goal         string    `json:"goal"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Registry is the persisted global document.
type Registry struct {
	Projects      []Record `json:"projects"`
	ActiveProject string   `json:"active_project,omitempty"`
}

// Manager is safe for concurrent use. All registry mutations serialize
// on its lock; per-project documents stay with their owning components.
type Manager struct {
	kv    *kvstore.Store
	index vector.Index

	mu sync.Mutex
}

// NewManager wires the manager. index may be nil; vector cleanup is then
// skipped.
func NewManager(kv *kvstore.Store, index vector.Index) *Manager {
	return &Manager{kv: kv, index: index}
}

func (m *Manager) loadRegistry() (*Registry, error) {
	var reg Registry
	if _, err := m.kv.Load("", "", registryFile, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (m *Manager) saveRegistry(reg *Registry) error {
	return m.kv.Save("", "", registryFile, reg)
}

// Create registers a new project for a goal and makes it active.
func (m *Manager) Create(goal string) (*Record, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, types.Validation("goal", "a non-empty goal is required to create a project")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.loadRegistry()
	if err != nil {
		return nil, err
	}

	rec := Record{
		ID:           uuid.NewString(),
		Goal:         goal,
		LastAccessed: time.Now().UTC(),
	}
	reg.Projects = append(reg.Projects, rec)
	reg.ActiveProject = rec.ID
	if err := m.saveRegistry(reg); err != nil {
		return nil, err
	}

	logging.Project("created project %s for goal %q", rec.ID, goal)
	return &rec, nil
}

// Switch sets the active project.
func (m *Manager) Switch(id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.loadRegistry()
	if err != nil {
		return nil, err
	}
	for i := range reg.Projects {
		if reg.Projects[i].ID == id {
			reg.Projects[i].LastAccessed = time.Now().UTC()
			reg.ActiveProject = id
			if err := m.saveRegistry(reg); err != nil {
				return nil, err
			}
			logging.Project("switched to project %s", id)
			rec := reg.Projects[i]
			return &rec, nil
		}
	}
	return nil, types.Validation("project_id", "no project with id %q", id)
}

// List returns every registered project.
func (m *Manager) List() ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.loadRegistry()
	if err != nil {
		return nil, err
	}
	return reg.Projects, nil
}

// Active returns the active project record, or nil when none is set.
func (m *Manager) Active() (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.loadRegistry()
	if err != nil {
		return nil, err
	}
	if reg.ActiveProject == "" {
		return nil, nil
	}
	for i := range reg.Projects {
		if reg.Projects[i].ID == reg.ActiveProject {
			rec := reg.Projects[i]
			return &rec, nil
		}
	}
	// Dangling pointer after an external edit; treat as no selection.
	return nil, nil
}

// RequireActive returns the active project or a NoActiveProject error.
func (m *Manager) RequireActive() (*Record, error) {
	rec, err := m.Active()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, types.NoActiveProject()
	}
	return rec, nil
}

// Touch refreshes a project's last_accessed stamp.
func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.loadRegistry()
	if err != nil {
		return err
	}
	for i := range reg.Projects {
		if reg.Projects[i].ID == id {
			reg.Projects[i].LastAccessed = time.Now().UTC()
			return m.saveRegistry(reg)
		}
	}
	return types.Validation("project_id", "no project with id %q", id)
}

// Delete removes one project: its registry entry, its documents and its
// mirrored vectors.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.loadRegistry()
	if err != nil {
		return err
	}

	found := false
	kept := reg.Projects[:0]
	for _, rec := range reg.Projects {
		if rec.ID == id {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return types.Validation("project_id", "no project with id %q", id)
	}
	reg.Projects = kept
	if reg.ActiveProject == id {
		reg.ActiveProject = ""
	}

	if err := m.saveRegistry(reg); err != nil {
		return err
	}
	if err := m.kv.DeleteProject(id); err != nil {
		return err
	}
	m.purgeVectors(id)

	logging.Project("deleted project %s", id)
	return nil
}

// FactoryReset deletes every project. Both confirmations are required:
// the boolean flag and a typed message of at least 10 characters.
func (m *Manager) FactoryReset(confirmDeletion bool, confirmationMessage string) (int, error) {
	if !confirmDeletion {
		return 0, types.Validation("confirm_deletion", "factory reset requires confirm_deletion=true")
	}
	if len(strings.TrimSpace(confirmationMessage)) < 10 {
		return 0, types.Validation("confirmation_message", "confirmation message must be at least 10 characters")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.loadRegistry()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range reg.Projects {
		if err := m.kv.DeleteProject(rec.ID); err != nil {
			return deleted, err
		}
		m.purgeVectors(rec.ID)
		deleted++
	}

	if err := m.saveRegistry(&Registry{}); err != nil {
		return deleted, err
	}
	logging.Project("factory reset: deleted %d projects", deleted)
	return deleted, nil
}

// Creator adapts Manager.Create for consumers that only need the new
// project id.
type Creator struct {
	Manager *Manager
}

func (c Creator) Create(goal string) (string, error) {
	rec, err := c.Manager.Create(goal)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// purgeVectors deletes the project's mirrored entries. Vector trouble
// never fails a project delete; the stale entries are filtered out of
// queries by the project predicate anyway.
func (m *Manager) purgeVectors(project string) {
	if m.index == nil {
		return
	}
	ids, err := m.index.List(map[string]string{"project": project})
	if err != nil {
		logging.Project("vector purge list failed for %s: %v", project, err)
		return
	}
	for _, id := range ids {
		if err := m.index.Delete(id); err != nil {
			logging.Project("vector delete failed for %s: %v", id, err)
		}
	}
}
