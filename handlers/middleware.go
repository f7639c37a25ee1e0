package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/camden-git/familytree/metrics"
	"github.com/camden-git/familytree/models"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// TreeContextKey is the key used to store the tree in the request context.
	TreeContextKey ContextKey = "tree"
)

// TreeGetter loads tree metadata by id.
type TreeGetter interface {
	GetTree(treeID uint) (*models.Tree, error)
}

// TreeContext resolves the {tree_id} URL parameter and stores the tree in the
// request context. Unknown trees are answered with 404 before the handler runs.
func TreeContext(trees TreeGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			treeIDStr := chi.URLParam(r, "tree_id")
			treeID, err := strconv.ParseUint(treeIDStr, 10, 64)
			if err != nil || treeID == 0 {
				WriteAPIError(w, http.StatusBadRequest, "invalid_tree_id", "Invalid tree ID")
				return
			}

			t, err := trees.GetTree(uint(treeID))
			if err != nil {
				writeServiceError(w, err, "fetch tree")
				return
			}

			ctx := context.WithValue(r.Context(), TreeContextKey, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TreeFromContext returns the tree stored by TreeContext.
func TreeFromContext(ctx context.Context) (*models.Tree, bool) {
	t, ok := ctx.Value(TreeContextKey).(*models.Tree)
	return t, ok && t != nil
}

// RequestMetrics records request counts and latencies labelled by route pattern.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
