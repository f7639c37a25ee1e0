package repository

import (
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/familytree/database"
	"github.com/camden-git/familytree/models"
)

// MemoryStore is a TreeStore kept in process memory. It backs the CLI and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID uint
	trees  map[uint]*models.Tree
	index  map[uint][]models.PersonIndex
}

var _ TreeStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trees: make(map[uint]*models.Tree),
		index: make(map[uint][]models.PersonIndex),
	}
}

func (m *MemoryStore) Create(tree *models.Tree) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now().Unix()
	tree.ID = m.nextID
	tree.CreatedAt, tree.UpdatedAt = now, now
	if tree.ExportStatus == "" {
		tree.ExportStatus = database.StatusNotRequired
	}
	c := *tree
	m.trees[tree.ID] = &c
	return nil
}

func (m *MemoryStore) GetByID(id uint) (*models.Tree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trees[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *t
	c.GedcomText = nil
	return &c, nil
}

func (m *MemoryStore) ListAll() ([]models.Tree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Tree, 0, len(m.trees))
	for id := uint(1); id <= m.nextID; id++ {
		if t, ok := m.trees[id]; ok {
			c := *t
			c.GedcomText = nil
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) Delete(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trees[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.trees, id)
	delete(m.index, id)
	return nil
}

func (m *MemoryStore) LoadGedcomText(treeID uint) (*string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trees[treeID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if t.GedcomText == nil {
		return nil, nil
	}
	text := *t.GedcomText
	return &text, nil
}

func (m *MemoryStore) SaveGedcomText(treeID uint, text string) error {
	return m.update(treeID, func(t *models.Tree) {
		t.GedcomText = &text
	})
}

func (m *MemoryStore) ReplacePersonIndex(treeID uint, rows []models.PersonIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trees[treeID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	batch := make([]models.PersonIndex, len(rows))
	for i, row := range rows {
		row.TreeID = treeID
		batch[i] = row
	}
	m.index[treeID] = batch
	t.PersonCount = len(rows)
	return nil
}

func (m *MemoryStore) SearchPeople(treeID uint, query string, limit int) ([]models.PersonIndex, error) {
	if limit <= 0 {
		limit = database.DefaultSearchLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))

	m.mu.RLock()
	out := []models.PersonIndex{}
	for _, row := range m.index[treeID] {
		if strings.Contains(strings.ToLower(row.DisplayName), q) ||
			strings.Contains(strings.ToLower(row.Given), q) ||
			strings.Contains(strings.ToLower(row.Surname), q) {
			out = append(out, row)
		}
	}
	m.mu.RUnlock()

	database.SortPersonIndex(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) RequestExport(treeID uint) error {
	return m.update(treeID, func(t *models.Tree) {
		t.ExportStatus = database.StatusPending
		t.ExportError = nil
	})
}

func (m *MemoryStore) MarkExportProcessing(treeID uint) error {
	return m.update(treeID, func(t *models.Tree) {
		t.ExportStatus = database.StatusProcessing
	})
}

func (m *MemoryStore) SetExportResult(treeID uint, exportPath *string, taskErr error) error {
	return m.update(treeID, func(t *models.Tree) {
		if taskErr != nil {
			s := taskErr.Error()
			t.ExportStatus, t.ExportError = database.StatusError, &s
			return
		}
		now := time.Now().Unix()
		t.ExportStatus, t.ExportError = database.StatusDone, nil
		t.ExportPath, t.ExportLastWrittenAt = exportPath, &now
	})
}

func (m *MemoryStore) update(treeID uint, fn func(*models.Tree)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trees[treeID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	fn(t)
	t.UpdatedAt = time.Now().Unix()
	return nil
}
