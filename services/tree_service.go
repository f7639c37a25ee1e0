package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/facette/natsort"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/camden-git/familytree/gedcom"
	"github.com/camden-git/familytree/metrics"
	"github.com/camden-git/familytree/models"
	"github.com/camden-git/familytree/realtime"
	"github.com/camden-git/familytree/repository"
	"github.com/camden-git/familytree/storage"
	"github.com/camden-git/familytree/tree"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateTreeRequest is the body of a tree creation.
type CreateTreeRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// ImportResult summarizes a GEDCOM import.
type ImportResult struct {
	Tree     *models.Tree         `json:"tree"`
	People   int                  `json:"people"`
	Families int                  `json:"families"`
	Skipped  []gedcom.SkippedLine `json:"skipped,omitempty"`
}

// ChangeListener is told about every new snapshot of a tree. A nil snapshot
// means the tree was deleted.
type ChangeListener func(treeID uint, snapshot *tree.Tree)

// TreeService owns the in-memory edit sessions of all trees and keeps the store
// in step with them. Writes to one tree are serialized; trees are independent.
type TreeService struct {
	Store          repository.TreeStore
	Hub            realtime.Broadcaster
	Files          storage.Store // export files, optional
	MaxUploadBytes int64

	mu        sync.Mutex
	sessions  map[uint]*tree.Session
	locks     map[uint]*sync.Mutex
	listeners []ChangeListener
}

func NewTreeService(store repository.TreeStore, hub realtime.Broadcaster, maxUploadBytes int64) *TreeService {
	if maxUploadBytes <= 0 {
		maxUploadBytes = gedcom.DefaultMaxUploadBytes
	}
	return &TreeService{
		Store:          store,
		Hub:            hub,
		MaxUploadBytes: maxUploadBytes,
		sessions:       make(map[uint]*tree.Session),
		locks:          make(map[uint]*sync.Mutex),
	}
}

// OnChange registers l for snapshot changes. Listeners run after the change is
// stored.
func (s *TreeService) OnChange(l ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *TreeService) CreateTree(req CreateTreeRequest) (*models.Tree, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: name: %s", tree.ErrValidation, "name is required and at most 200 characters")
	}
	t := &models.Tree{Name: req.Name}
	if err := s.Store.Create(t); err != nil {
		return nil, err
	}
	zap.S().Infof("Created tree %d (%s)", t.ID, t.Name)
	return t, nil
}

// ListTrees returns all trees in natural order of name.
func (s *TreeService) ListTrees() ([]models.Tree, error) {
	trees, err := s.Store.ListAll()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(trees, func(a, b models.Tree) int {
		switch {
		case a.Name == b.Name:
			return int(a.ID) - int(b.ID)
		case natsort.Compare(a.Name, b.Name):
			return -1
		default:
			return 1
		}
	})
	return trees, nil
}

func (s *TreeService) GetTree(treeID uint) (*models.Tree, error) {
	return s.Store.GetByID(treeID)
}

func (s *TreeService) DeleteTree(treeID uint) error {
	lock := s.lock(treeID)
	lock.Lock()
	defer lock.Unlock()

	meta, err := s.Store.GetByID(treeID)
	if err != nil {
		return err
	}
	if err := s.Store.Delete(treeID); err != nil {
		return err
	}
	if s.Files != nil && meta.ExportPath != nil {
		if err := s.Files.Delete(*meta.ExportPath); err != nil {
			zap.S().Warnf("Failed to remove export %s of deleted tree %d: %v", *meta.ExportPath, treeID, err)
		}
	}
	s.mu.Lock()
	delete(s.sessions, treeID)
	s.mu.Unlock()
	s.notify(treeID, nil, "delete_tree")
	zap.S().Infof("Deleted tree %d", treeID)
	return nil
}

// ImportGedcom replaces the content of a tree with an uploaded GEDCOM file.
func (s *TreeService) ImportGedcom(treeID uint, filename string, size int64, r io.Reader) (*ImportResult, error) {
	if err := gedcom.ValidateUpload(filename, size, s.MaxUploadBytes); err != nil {
		metrics.ImportsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	raw, err := io.ReadAll(io.LimitReader(r, s.MaxUploadBytes+1))
	if err != nil {
		metrics.ImportsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read upload %s: %w", filename, err)
	}
	if int64(len(raw)) > s.MaxUploadBytes {
		metrics.ImportsTotal.WithLabelValues("rejected").Inc()
		return nil, gedcom.ErrFileTooLarge
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	lock := s.lock(treeID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.Store.GetByID(treeID); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := gedcom.Import(string(raw))
	metrics.ParseDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ImportsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.SkippedLinesTotal.Add(float64(len(result.Skipped)))

	snapshot := tree.New(result.People)
	if err := s.persist(treeID, snapshot); err != nil {
		metrics.ImportsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	s.session(treeID, snapshot).Replace(snapshot)
	metrics.ImportsTotal.WithLabelValues("ok").Inc()

	meta, err := s.Store.GetByID(treeID)
	if err != nil {
		return nil, err
	}
	zap.S().Infof("Imported %s into tree %d: %d people, %d families, %d skipped lines",
		filename, treeID, snapshot.Len(), result.Families, len(result.Skipped))
	return &ImportResult{Tree: meta, People: snapshot.Len(), Families: result.Families, Skipped: result.Skipped}, nil
}

// ExportGedcom serializes the current snapshot of a tree.
func (s *TreeService) ExportGedcom(treeID uint) (string, error) {
	text, err := s.exportText(treeID)
	if err != nil {
		return "", err
	}
	metrics.ExportsTotal.WithLabelValues("download").Inc()
	return text, nil
}

func (s *TreeService) exportText(treeID uint) (string, error) {
	snapshot, err := s.Snapshot(treeID)
	if err != nil {
		return "", err
	}
	return gedcom.Write(snapshot.People()), nil
}

// WriteExport stores the tree as tree-<id>.ged and returns its storage path.
func (s *TreeService) WriteExport(treeID uint) (string, error) {
	if s.Files == nil {
		return "", errors.New("export storage is not configured")
	}
	text, err := s.exportText(treeID)
	if err != nil {
		return "", err
	}
	rel, err := s.Files.Save(storage.AssetTypeExport, ExportFileName(treeID), strings.NewReader(text))
	if err != nil {
		return "", fmt.Errorf("failed to store export for tree %d: %w", treeID, err)
	}
	metrics.ExportsTotal.WithLabelValues("file").Inc()
	return rel, nil
}

// ExportFileName is the download name of a tree's GEDCOM.
func ExportFileName(treeID uint) string {
	return fmt.Sprintf("tree-%d.ged", treeID)
}

// People returns the flat person list of a tree.
func (s *TreeService) People(treeID uint) ([]gedcom.Person, error) {
	snapshot, err := s.Snapshot(treeID)
	if err != nil {
		return nil, err
	}
	return snapshot.People(), nil
}

// Graph is the link list and generation levels of a tree.
type Graph struct {
	Links       []tree.Link    `json:"links"`
	Generations map[string]int `json:"generations"`
	Passes      int            `json:"passes"`
	Converged   bool           `json:"converged"`
}

func (s *TreeService) Graph(treeID uint) (*Graph, error) {
	snapshot, err := s.Snapshot(treeID)
	if err != nil {
		return nil, err
	}
	links, gens := snapshot.Graph()
	if links == nil {
		links = []tree.Link{}
	}
	return &Graph{Links: links, Generations: gens.Levels, Passes: gens.Passes, Converged: gens.Converged}, nil
}

// Apply runs one edit against a tree. The edit is stored before the session
// moves on, so a storage failure leaves the tree as it was.
func (s *TreeService) Apply(treeID uint, req tree.EditRequest) (*tree.Tree, error) {
	cmd, err := req.Command()
	if err != nil {
		metrics.EditsTotal.WithLabelValues(req.Op, "invalid").Inc()
		return nil, err
	}

	lock := s.lock(treeID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.loadSession(treeID)
	if err != nil {
		return nil, err
	}
	var storeErr error
	next, err := sess.ApplyAndCommit(cmd, func(next *tree.Tree) error {
		storeErr = s.persist(treeID, next)
		return storeErr
	})
	if err != nil {
		status := "invalid"
		if storeErr != nil {
			status = "error"
		}
		metrics.EditsTotal.WithLabelValues(cmd.Name(), status).Inc()
		return nil, err
	}
	metrics.EditsTotal.WithLabelValues(cmd.Name(), "ok").Inc()
	return next, nil
}

// Search looks people up in the person index.
func (s *TreeService) Search(treeID uint, query string, limit int) ([]models.PersonIndex, error) {
	if _, err := s.Store.GetByID(treeID); err != nil {
		return nil, err
	}
	return s.Store.SearchPeople(treeID, query, limit)
}

// Reindex rebuilds the person index from the stored GEDCOM and refreshes the
// session from it.
func (s *TreeService) Reindex(treeID uint) (int, error) {
	lock := s.lock(treeID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := s.loadStored(treeID)
	if err != nil {
		return 0, err
	}
	if err := s.Store.ReplacePersonIndex(treeID, IndexRows(treeID, snapshot)); err != nil {
		return 0, err
	}
	s.session(treeID, snapshot)
	return snapshot.Len(), nil
}

// Snapshot returns the current immutable tree, loading it from the store on
// first use.
func (s *TreeService) Snapshot(treeID uint) (*tree.Tree, error) {
	s.mu.Lock()
	sess, ok := s.sessions[treeID]
	s.mu.Unlock()
	if ok {
		return sess.Snapshot(), nil
	}

	lock := s.lock(treeID)
	lock.Lock()
	defer lock.Unlock()
	sess, err := s.loadSession(treeID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

// loadSession must run under the tree lock.
func (s *TreeService) loadSession(treeID uint) (*tree.Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[treeID]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}
	snapshot, err := s.loadStored(treeID)
	if err != nil {
		return nil, err
	}
	return s.session(treeID, snapshot), nil
}

func (s *TreeService) loadStored(treeID uint) (*tree.Tree, error) {
	text, err := s.Store.LoadGedcomText(treeID)
	if err != nil {
		return nil, err
	}
	if text == nil {
		return tree.New(nil), nil
	}
	result := gedcom.Parse(*text)
	if len(result.Skipped) > 0 {
		zap.S().Warnf("Stored GEDCOM of tree %d has %d unreadable lines", treeID, len(result.Skipped))
	}
	return tree.New(result.People), nil
}

// session returns the session of a tree, creating it from initial when missing.
func (s *TreeService) session(treeID uint, initial *tree.Tree) *tree.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[treeID]; ok {
		return sess
	}
	sess := tree.NewSession(initial)
	sess.Subscribe(func(snapshot *tree.Tree, cmd tree.Command) {
		op := "replace"
		if cmd != nil {
			op = cmd.Name()
		}
		s.notify(treeID, snapshot, op)
	})
	s.sessions[treeID] = sess
	return sess
}

func (s *TreeService) persist(treeID uint, snapshot *tree.Tree) error {
	if err := s.Store.SaveGedcomText(treeID, gedcom.Write(snapshot.People())); err != nil {
		return err
	}
	if err := s.Store.ReplacePersonIndex(treeID, IndexRows(treeID, snapshot)); err != nil {
		return err
	}
	return nil
}

func (s *TreeService) notify(treeID uint, snapshot *tree.Tree, op string) {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, l := range listeners {
		l(treeID, snapshot)
	}
	if s.Hub == nil {
		return
	}
	people := 0
	if snapshot != nil {
		people = snapshot.Len()
	}
	s.Hub.Broadcast(realtime.Event{
		Type:   realtime.EventTreeUpdated,
		TreeID: treeID,
		Task:   op,
		Extra:  map[string]interface{}{"people": people},
	})
}

func (s *TreeService) lock(treeID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[treeID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[treeID] = l
	}
	return l
}

// IndexRows flattens a snapshot into person index rows.
func IndexRows(treeID uint, snapshot *tree.Tree) []models.PersonIndex {
	_, gens := snapshot.Graph()
	people := snapshot.People()
	rows := make([]models.PersonIndex, 0, len(people))
	for _, p := range people {
		rows = append(rows, models.PersonIndex{
			TreeID:      treeID,
			PersonID:    p.ID,
			DisplayName: p.Label(gedcom.DefaultLocale),
			Given:       p.Given,
			Surname:     p.Surname,
			Gender:      p.Gender,
			BirthYear:   p.BirthYear,
			Generation:  gens.Level(p.ID),
		})
	}
	return rows
}

// IsValidation reports whether err is a client-side input problem.
func IsValidation(err error) bool {
	return errors.Is(err, tree.ErrValidation) ||
		errors.Is(err, gedcom.ErrNoIndividuals) ||
		errors.Is(err, gedcom.ErrFileTooLarge) ||
		errors.Is(err, gedcom.ErrUnsupportedFile)
}
