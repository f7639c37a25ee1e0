package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/camden-git/familytree/layout"
	"github.com/camden-git/familytree/services"
)

const defaultFitPadding = 40

// layoutRequest reads ?ticks= and ?locale=.
func layoutRequest(r *http.Request) (services.LayoutRequest, bool) {
	ticks, err := queryInt(r, "ticks", 0)
	if err != nil {
		return services.LayoutRequest{}, false
	}
	return services.LayoutRequest{Ticks: ticks, Locale: r.URL.Query().Get("locale")}, true
}

// GetLayout runs a headless layout and returns node positions and draw commands
func (h *TreeHandler) GetLayout(w http.ResponseWriter, r *http.Request) {
	req, ok := layoutRequest(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "invalid_ticks", "ticks must be an integer")
		return
	}
	result, err := h.Layouts.Compute(treeID(r), req)
	if err != nil {
		writeServiceError(w, err, "compute layout")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetLayoutSVG renders the layout of the tree as an SVG document
func (h *TreeHandler) GetLayoutSVG(w http.ResponseWriter, r *http.Request) {
	req, ok := layoutRequest(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "invalid_ticks", "ticks must be an integer")
		return
	}
	padding, err := queryFloat(r, "padding", defaultFitPadding)
	if err != nil || padding < 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_padding", "padding must be a non-negative number")
		return
	}

	// render fully before writing so failures still get a JSON error
	var buf bytes.Buffer
	if err := h.Layouts.RenderSVG(&buf, treeID(r), req, padding); err != nil {
		writeServiceError(w, err, "render layout")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		zap.S().Warnf("GetLayoutSVG: writing tree %d failed: %v", treeID(r), err)
	}
}

// GetLayoutFit returns the camera transform showing the whole tree in a
// ?width= by ?height= viewport
func (h *TreeHandler) GetLayoutFit(w http.ResponseWriter, r *http.Request) {
	req, ok := layoutRequest(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "invalid_ticks", "ticks must be an integer")
		return
	}
	width, errW := queryFloat(r, "width", 0)
	height, errH := queryFloat(r, "height", 0)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_viewport", "width and height must be positive numbers")
		return
	}
	padding, err := queryFloat(r, "padding", defaultFitPadding)
	if err != nil || padding < 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_padding", "padding must be a non-negative number")
		return
	}

	t, err := h.Layouts.Fit(treeID(r), req, layout.Viewport{Width: width, Height: height}, padding)
	if err != nil {
		writeServiceError(w, err, "fit layout")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DragLayout forwards a pointer drag to the live layout engine of the tree.
// Frames are streamed over the websocket as layout_tick events.
func (h *TreeHandler) DragLayout(w http.ResponseWriter, r *http.Request) {
	var req services.DragRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if err := h.Layouts.Drag(treeID(r), req); err != nil {
		writeServiceError(w, err, "drag layout node")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "running"})
}
