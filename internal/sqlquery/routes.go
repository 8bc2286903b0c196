package sqlquery

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/compound-rag/internal/api"
)

// RegisterRoutes mounts the database search endpoints.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/api/search/database", searchHandler(svc))
	r.Get("/api/search/database/tables", tablesHandler(svc))
}

type searchRequest struct {
	Query     string   `json:"query" validate:"required,max=2000"`
	TableName string   `json:"table_name" validate:"required"`
	Columns   []string `json:"columns" validate:"omitempty,dive,required"`
	Summary   bool     `json:"summary"`
}

func searchHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		var req searchRequest
		if err := api.Decode(r, &req); err != nil {
			api.Error(w, r, err)
			return
		}
		res, err := svc.SearchDatabase(r.Context(), compoundID, Request{
			Query:   req.Query,
			Table:   req.TableName,
			Columns: req.Columns,
			Summary: req.Summary,
		})
		if err != nil {
			api.Error(w, r, err)
			return
		}
		api.JSON(w, http.StatusOK, res)
	}
}

func tablesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, map[string]any{"tables": svc.Tables()})
	}
}
