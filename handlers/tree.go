package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/camden-git/familytree/services"
	"github.com/camden-git/familytree/tree"
	"github.com/camden-git/familytree/workers"
)

const (
	// multipartMemory is the part of an upload kept in memory before spilling to disk.
	multipartMemory = 8 << 20
	// multipartOverhead allows for boundaries and headers around the uploaded file.
	multipartOverhead = 1 << 20
)

// ExportQueue accepts background jobs for trees.
type ExportQueue interface {
	QueueJob(job workers.TreeJob) bool
	IsPending(job workers.TreeJob) bool
}

type TreeHandler struct {
	Trees   *services.TreeService
	Layouts *services.LayoutService
	Jobs    ExportQueue
}

func NewTreeHandler(trees *services.TreeService, layouts *services.LayoutService, jobs ExportQueue) *TreeHandler {
	return &TreeHandler{Trees: trees, Layouts: layouts, Jobs: jobs}
}

// Routes returns the /api/trees router.
func (h *TreeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListTrees)
	r.Post("/", h.CreateTree)

	r.Route("/{tree_id}", func(r chi.Router) {
		r.Use(TreeContext(h.Trees))
		r.Get("/", h.GetTree)
		r.Delete("/", h.DeleteTree)
		r.Post("/gedcom", h.UploadGedcom)
		r.Get("/gedcom", h.DownloadGedcom)
		r.Post("/exports", h.QueueExport)
		r.Get("/people", h.ListPeople)
		r.Post("/edits", h.ApplyEdit)
		r.Get("/graph", h.GetGraph)
		r.Get("/search", h.SearchPeople)
		r.Get("/layout", h.GetLayout)
		r.Get("/layout.svg", h.GetLayoutSVG)
		r.Get("/layout/fit", h.GetLayoutFit)
		r.Post("/layout/drag", h.DragLayout)
	})
	return r
}

// treeID reads the tree resolved by TreeContext.
func treeID(r *http.Request) uint {
	t, ok := TreeFromContext(r.Context())
	if !ok {
		return 0
	}
	return t.ID
}

// ListTrees returns all trees in natural name order
func (h *TreeHandler) ListTrees(w http.ResponseWriter, r *http.Request) {
	trees, err := h.Trees.ListTrees()
	if err != nil {
		writeServiceError(w, err, "list trees")
		return
	}
	writeJSON(w, http.StatusOK, trees)
}

func (h *TreeHandler) CreateTree(w http.ResponseWriter, r *http.Request) {
	var req services.CreateTreeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	created, err := h.Trees.CreateTree(req)
	if err != nil {
		writeServiceError(w, err, "create tree")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *TreeHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	t, _ := TreeFromContext(r.Context())
	writeJSON(w, http.StatusOK, t)
}

func (h *TreeHandler) DeleteTree(w http.ResponseWriter, r *http.Request) {
	if err := h.Trees.DeleteTree(treeID(r)); err != nil {
		writeServiceError(w, err, "delete tree")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadGedcom imports the multipart "file" field into the tree, replacing its content
func (h *TreeHandler) UploadGedcom(w http.ResponseWriter, r *http.Request) {
	id := treeID(r)
	r.Body = http.MaxBytesReader(w, r.Body, h.Trees.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteAPIError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds the maximum upload size")
			return
		}
		WriteAPIError(w, http.StatusBadRequest, "invalid_multipart", "Invalid multipart form: "+err.Error())
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			zap.S().Warnf("UploadGedcom: failed to remove temporary upload files: %v", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "missing_file", "Form field 'file' is required")
		return
	}
	defer file.Close()

	result, err := h.Trees.ImportGedcom(id, header.Filename, header.Size, file)
	if err != nil {
		writeServiceError(w, err, "import GEDCOM")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DownloadGedcom sends the current tree as a normalized GEDCOM file
func (h *TreeHandler) DownloadGedcom(w http.ResponseWriter, r *http.Request) {
	id := treeID(r)
	text, err := h.Trees.ExportGedcom(id)
	if err != nil {
		writeServiceError(w, err, "export GEDCOM")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", services.ExportFileName(id)))
	w.Header().Set("Content-Length", strconv.Itoa(len(text)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		zap.S().Warnf("DownloadGedcom: writing tree %d failed: %v", id, err)
	}
}

// QueueExport schedules a background write of the tree into the exports directory
func (h *TreeHandler) QueueExport(w http.ResponseWriter, r *http.Request) {
	id := treeID(r)
	if h.Jobs == nil {
		WriteAPIError(w, http.StatusServiceUnavailable, "workers_unavailable", "Background workers not configured")
		return
	}
	job := workers.TreeJob{TreeID: id, TaskType: workers.TaskExport}
	if h.Jobs.IsPending(job) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	}

	if err := h.Trees.Store.RequestExport(id); err != nil {
		writeServiceError(w, err, "request export")
		return
	}
	if !h.Jobs.QueueJob(job) {
		queueErr := errors.New("export queue is full")
		if err := h.Trees.Store.SetExportResult(id, nil, queueErr); err != nil {
			zap.S().Errorf("QueueExport: failed to record queue failure for tree %d: %v", id, err)
		}
		WriteAPIError(w, http.StatusServiceUnavailable, "queue_full", "Export queue is full, try again later")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

func (h *TreeHandler) ListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := h.Trees.People(treeID(r))
	if err != nil {
		writeServiceError(w, err, "list people")
		return
	}
	writeJSON(w, http.StatusOK, people)
}

// ApplyEdit applies one edit command and returns the resulting people
func (h *TreeHandler) ApplyEdit(w http.ResponseWriter, r *http.Request) {
	var req tree.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	next, err := h.Trees.Apply(treeID(r), req)
	if err != nil {
		writeServiceError(w, err, "apply edit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"people": next.People(),
	})
}

func (h *TreeHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	g, err := h.Trees.Graph(treeID(r))
	if err != nil {
		writeServiceError(w, err, "build graph")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// SearchPeople searches the person index with ?q= and an optional ?limit=
func (h *TreeHandler) SearchPeople(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return
	}
	rows, err := h.Trees.Search(treeID(r), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeServiceError(w, err, "search people")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}
