package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExportServer creates a handler serving written GEDCOM exports from exportsDir.
// The request path is expected to be routePrefix followed by the file name:
//
//	r.Get("/api/exports/*", ExportServer(cfg.ExportsPath, "/api/exports/"))
//
// Files are always sent as downloads.
func ExportServer(exportsDir, routePrefix string) http.HandlerFunc {
	baseDir := filepath.Clean(exportsDir)
	zap.S().Infof("Serving exports for '%s*' from directory: %s", routePrefix, baseDir)

	return func(w http.ResponseWriter, r *http.Request) {
		// e.g., for request /api/exports/tree-1.ged, extract "tree-1.ged"
		relativePath := strings.TrimPrefix(r.URL.Path, routePrefix)

		if relativePath == "" || strings.Contains(relativePath, "..") {
			WriteAPIError(w, http.StatusBadRequest, "invalid_path", "Invalid export path")
			return
		}

		requestedPath := filepath.Clean(filepath.Join(baseDir, relativePath))
		if !strings.HasPrefix(requestedPath, baseDir+string(filepath.Separator)) {
			WriteAPIError(w, http.StatusForbidden, "forbidden", "Forbidden")
			zap.S().Warnf("SECURITY: Attempted export access outside designated directory: Request='%s', Resolved='%s', Allowed Base='%s'",
				r.URL.Path, requestedPath, baseDir)
			return
		}

		info, err := os.Stat(requestedPath)
		if os.IsNotExist(err) || (err == nil && info.IsDir()) {
			WriteAPIError(w, http.StatusNotFound, "export_not_found", "Export not found")
			return
		} else if err != nil {
			WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to read export")
			zap.S().Errorf("Error stating export file %s: %v", requestedPath, err)
			return
		}

		cacheDuration := time.Minute
		w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(requestedPath)))

		http.ServeFile(w, r, requestedPath)
	}
}
