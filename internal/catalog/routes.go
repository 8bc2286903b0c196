package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/compound-rag/internal/api"
)

// RegisterRoutes mounts compound, department, document listing and
// assignment endpoints on the given router.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Post("/api/compounds", createCompoundHandler(store))
	r.Get("/api/compounds", listCompoundsHandler(store))
	r.Get("/api/compounds/{compoundID}", getCompoundHandler(store))

	r.Post("/api/departments", createDepartmentHandler(store))
	r.Get("/api/departments", listDepartmentsHandler(store))
	r.Get("/api/departments/{departmentID}/documents", listDepartmentDocumentsHandler(store))
	r.Post("/api/departments/{departmentID}/documents", assignDocumentHandler(store))

	r.Get("/api/documents", listDocumentsHandler(store))
	r.Get("/api/documents/{documentID}", getDocumentHandler(store))
}

type titleRequest struct {
	ID    string `json:"id" validate:"omitempty,max=128"`
	Title string `json:"title" validate:"required,max=256"`
}

func createCompoundHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req titleRequest
		if err := api.Decode(r, &req); err != nil {
			api.Error(w, r, err)
			return
		}
		c := &Compound{ID: req.ID, Title: req.Title}
		if err := store.CreateCompound(r.Context(), c); err != nil {
			api.Error(w, r, err)
			return
		}
		api.JSON(w, http.StatusCreated, c)
	}
}

func listCompoundsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compounds, err := store.ListCompounds(r.Context())
		if err != nil {
			api.Error(w, r, err)
			return
		}
		if compounds == nil {
			compounds = []Compound{}
		}
		api.JSON(w, http.StatusOK, compounds)
	}
}

func getCompoundHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := store.GetCompound(r.Context(), chi.URLParam(r, "compoundID"))
		if err != nil {
			api.Error(w, r, err)
			return
		}
		api.JSON(w, http.StatusOK, c)
	}
}

func createDepartmentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		var req titleRequest
		if err := api.Decode(r, &req); err != nil {
			api.Error(w, r, err)
			return
		}
		d := &Department{ID: req.ID, CompoundID: compoundID, Title: req.Title}
		if err := store.CreateDepartment(r.Context(), d); err != nil {
			api.Error(w, r, err)
			return
		}
		api.JSON(w, http.StatusCreated, d)
	}
}

func listDepartmentsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		deps, err := store.ListDepartments(r.Context(), compoundID)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		if deps == nil {
			deps = []Department{}
		}
		api.JSON(w, http.StatusOK, deps)
	}
}

func listDocumentsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		docs, err := store.ListDocuments(r.Context(), compoundID)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		if docs == nil {
			docs = []Document{}
		}
		api.JSON(w, http.StatusOK, docs)
	}
}

func getDocumentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		doc, err := store.GetDocument(r.Context(), compoundID, chi.URLParam(r, "documentID"))
		if err != nil {
			api.Error(w, r, err)
			return
		}
		api.JSON(w, http.StatusOK, doc)
	}
}

func listDepartmentDocumentsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		docs, err := store.ListDepartmentDocuments(r.Context(), compoundID, chi.URLParam(r, "departmentID"))
		if err != nil {
			api.Error(w, r, err)
			return
		}
		if docs == nil {
			docs = []Document{}
		}
		api.JSON(w, http.StatusOK, docs)
	}
}

type assignRequest struct {
	DocumentID string `json:"document_id" validate:"required"`
}

func assignDocumentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		var req assignRequest
		if err := api.Decode(r, &req); err != nil {
			api.Error(w, r, err)
			return
		}
		departmentID := chi.URLParam(r, "departmentID")
		if err := store.AssignDocument(r.Context(), compoundID, departmentID, req.DocumentID); err != nil {
			api.Error(w, r, err)
			return
		}
		api.JSON(w, http.StatusCreated, map[string]string{
			"department_id": departmentID,
			"document_id":   req.DocumentID,
		})
	}
}
