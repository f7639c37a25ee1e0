package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/familytree/gedcom"
	"github.com/camden-git/familytree/tree"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps a service error onto the error envelope. Unexpected
// errors are logged and reported as "Failed to <action>".
func writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		WriteAPIError(w, http.StatusNotFound, "tree_not_found", "Tree not found")
	case errors.Is(err, tree.ErrPersonNotFound):
		WriteAPIError(w, http.StatusNotFound, "person_not_found", err.Error())
	case errors.Is(err, gedcom.ErrFileTooLarge):
		WriteAPIError(w, http.StatusRequestEntityTooLarge, "file_too_large", err.Error())
	case errors.Is(err, gedcom.ErrUnsupportedFile):
		WriteAPIError(w, http.StatusUnsupportedMediaType, "unsupported_file", err.Error())
	case errors.Is(err, gedcom.ErrNoIndividuals):
		WriteAPIError(w, http.StatusUnprocessableEntity, "no_individuals", err.Error())
	case errors.Is(err, tree.ErrValidation):
		WriteAPIError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		zap.S().Errorf("Failed to %s: %v", action, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to "+action)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			zap.S().Errorf("Error encoding JSON response: %v", err)
		}
	}
}
