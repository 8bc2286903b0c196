package search

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/compound-rag/internal/api"
)

// RegisterRoutes mounts the document search endpoints.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/api/search/documents", searchDocumentsHandler(svc))
	r.Post("/api/search/department-documents", searchDepartmentHandler(svc))
}

type documentsRequest struct {
	Query       string   `json:"query" validate:"required,max=2000"`
	DocumentIDs []string `json:"document_ids" validate:"omitempty,dive,required"`
	TopK        int      `json:"top_k" validate:"omitempty,min=1,max=100"`
}

type departmentRequest struct {
	Query        string `json:"query" validate:"required,max=2000"`
	DepartmentID string `json:"department_id" validate:"required"`
	TopK         int    `json:"top_k" validate:"omitempty,min=1,max=100"`
}

func searchDocumentsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		var req documentsRequest
		if err := api.Decode(r, &req); err != nil {
			api.Error(w, r, err)
			return
		}
		res, err := svc.SearchDocuments(r.Context(), compoundID, req.Query, req.DocumentIDs, req.TopK)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		api.JSON(w, http.StatusOK, res)
	}
}

func searchDepartmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		var req departmentRequest
		if err := api.Decode(r, &req); err != nil {
			api.Error(w, r, err)
			return
		}
		res, err := svc.SearchDepartmentDocuments(r.Context(), compoundID, req.DepartmentID, req.Query, req.TopK)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		api.JSON(w, http.StatusOK, res)
	}
}
