// Package search answers natural-language questions over the indexed
// documents of one compound.
package search

import (
	"context"
	"strings"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/catalog"
)

// ScopeRequest narrows a search. At most one of DocumentIDs and
// DepartmentID is expected; DocumentIDs wins when both are set.
type ScopeRequest struct {
	DocumentIDs  []string
	DepartmentID string
}

// ScopeResolver turns a scope request into the indexed document ids of one
// compound.
type ScopeResolver struct {
	store *catalog.Store
}

func NewScopeResolver(store *catalog.Store) *ScopeResolver {
	return &ScopeResolver{store: store}
}

// Resolve returns the eligible document ids in ascending order. Foreign
// ids are dropped without error and only indexed documents are kept, so
// an empty slice is a normal outcome. A missing or unknown compound is a
// validation error.
func (r *ScopeResolver) Resolve(ctx context.Context, compoundID string, req ScopeRequest) ([]string, error) {
	compoundID = strings.TrimSpace(compoundID)
	if err := r.store.RequireCompound(ctx, compoundID); err != nil {
		return nil, err
	}

	switch {
	case len(req.DocumentIDs) > 0:
		return r.store.FilterIndexedDocumentIDs(ctx, compoundID, req.DocumentIDs)
	case req.DepartmentID != "":
		dep, err := r.store.GetDepartment(ctx, req.DepartmentID)
		if err != nil {
			return nil, err
		}
		if dep.CompoundID != compoundID {
			return nil, apperr.NotFound("department %s not found", req.DepartmentID)
		}
		return r.store.DepartmentIndexedDocumentIDs(ctx, compoundID, req.DepartmentID)
	default:
		return r.store.IndexedDocumentIDs(ctx, compoundID)
	}
}
