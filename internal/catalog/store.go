package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/db"
)

// ErrStaleStatus is returned when a transition's expected current status no
// longer holds.
var ErrStaleStatus = errors.New("document status changed concurrently")

// Store provides persistence for compounds, departments, documents and
// department assignments.
type Store struct {
	db *db.DB
}

// NewStore creates a new catalog store.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

// CreateCompound inserts a new compound.
func (s *Store) CreateCompound(ctx context.Context, c *Compound) error {
	if strings.TrimSpace(c.Title) == "" {
		return apperr.Validation(apperr.CodeInvalidRequest, "compound title is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compounds (id, title, created_at) VALUES (?, ?, ?)`,
		c.ID, c.Title, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return apperr.Conflict(apperr.CodeAlreadyExists, "compound %s already exists", c.ID)
	}
	if err != nil {
		return fmt.Errorf("creating compound: %w", err)
	}
	return nil
}

// GetCompound retrieves a compound by ID.
func (s *Store) GetCompound(ctx context.Context, id string) (*Compound, error) {
	c := &Compound{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM compounds WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("compound %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting compound: %w", err)
	}
	return c, nil
}

// RequireCompound checks the scope of a search-family request. A missing
// or unknown compound is a validation error, never a NotFound, so callers
// fail closed without learning which compounds exist.
func (s *Store) RequireCompound(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation(apperr.CodeMissingCompoundID, "compound id is required")
	}
	_, err := s.GetCompound(ctx, id)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return apperr.Validation(apperr.CodeInvalidScope, "unknown compound %q", id).
			WithDetail("compound_id", id)
	}
	return err
}

// ListCompounds returns all compounds ordered by title.
func (s *Store) ListCompounds(ctx context.Context) ([]Compound, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, created_at FROM compounds ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("listing compounds: %w", err)
	}
	defer rows.Close()

	var out []Compound
	for rows.Next() {
		var c Compound
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning compound: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateDepartment inserts a department under an existing compound.
func (s *Store) CreateDepartment(ctx context.Context, d *Department) error {
	if strings.TrimSpace(d.Title) == "" {
		return apperr.Validation(apperr.CodeInvalidRequest, "department title is required")
	}
	if _, err := s.GetCompound(ctx, d.CompoundID); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO departments (id, compound_id, title, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.CompoundID, d.Title, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating department: %w", err)
	}
	return nil
}

// GetDepartment retrieves a department by ID regardless of compound.
func (s *Store) GetDepartment(ctx context.Context, id string) (*Department, error) {
	d := &Department{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, compound_id, title, created_at FROM departments WHERE id = ?`, id,
	).Scan(&d.ID, &d.CompoundID, &d.Title, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("department %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting department: %w", err)
	}
	return d, nil
}

// ListDepartments returns the departments of a compound.
func (s *Store) ListDepartments(ctx context.Context, compoundID string) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, compound_id, title, created_at FROM departments WHERE compound_id = ? ORDER BY title, id`,
		compoundID)
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.CompoundID, &d.Title, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning department: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const documentColumns = `id, compound_id, title, file_name, source, size, sha256, index_name, indexer_name,
	status, error_message, attempt, chunk_count, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	d := &Document{}
	err := row.Scan(&d.ID, &d.CompoundID, &d.Title, &d.FileName, &d.Source, &d.Size, &d.SHA256,
		&d.IndexName, &d.IndexerName, &d.Status, &d.ErrorMessage, &d.Attempt, &d.ChunkCount,
		&d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// CreateDocument inserts a pending document. A fingerprint already present
// in the compound yields a DuplicateContent error naming the existing row.
func (s *Store) CreateDocument(ctx context.Context, d *Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	d.Status = StatusPending
	if d.Attempt == 0 {
		d.Attempt = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CompoundID, d.Title, d.FileName, d.Source, d.Size, d.SHA256, d.IndexName, d.IndexerName,
		d.Status, d.ErrorMessage, d.Attempt, d.ChunkCount, d.CreatedAt, d.UpdatedAt,
	)
	if isUniqueViolation(err) {
		existing, found, ferr := s.FindByFingerprint(ctx, d.CompoundID, d.SHA256)
		if ferr == nil && found {
			return apperr.Duplicate(existing.ID)
		}
	}
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	return nil
}

// FindByFingerprint looks up a document of the compound by content hash.
func (s *Store) FindByFingerprint(ctx context.Context, compoundID, sha string) (*Document, bool, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE compound_id = ? AND sha256 = ?`, compoundID, sha))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("finding document by fingerprint: %w", err)
	}
	return d, true, nil
}

// GetDocument retrieves a document of the given compound. Documents of other
// compounds are reported as not found.
func (s *Store) GetDocument(ctx context.Context, compoundID, id string) (*Document, error) {
	d, err := s.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.CompoundID != compoundID {
		return nil, apperr.NotFound("document %s not found", id)
	}
	return d, nil
}

// GetDocumentByID retrieves a document without a compound check. It is used
// by the ingestion workers, which already own the document.
func (s *Store) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("document %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return d, nil
}

// ListDocuments returns the documents of a compound, newest first.
func (s *Store) ListDocuments(ctx context.Context, compoundID string) ([]Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE compound_id = ? ORDER BY created_at DESC, id`,
		compoundID)
}

// GetDocuments returns the documents of a compound with the given ids, in id order.
func (s *Store) GetDocuments(ctx context.Context, compoundID string, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := append([]any{compoundID}, toArgs(ids)...)
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE compound_id = ? AND id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		args...)
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// IndexedDocumentIDs returns the ids of every indexed document of a compound.
func (s *Store) IndexedDocumentIDs(ctx context.Context, compoundID string) ([]string, error) {
	return s.queryIDs(ctx,
		`SELECT id FROM documents WHERE compound_id = ? AND status = ? ORDER BY id`,
		compoundID, StatusIndexed)
}

// PendingDocumentIDs returns every document still waiting for a worker,
// across compounds, oldest first.
func (s *Store) PendingDocumentIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx,
		`SELECT id FROM documents WHERE status = ? ORDER BY created_at, id`, StatusPending)
}

// FilterIndexedDocumentIDs intersects ids with the compound's indexed documents.
func (s *Store) FilterIndexedDocumentIDs(ctx context.Context, compoundID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := append([]any{compoundID, StatusIndexed}, toArgs(ids)...)
	return s.queryIDs(ctx,
		`SELECT id FROM documents WHERE compound_id = ? AND status = ? AND id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		args...)
}

// DepartmentIndexedDocumentIDs returns the indexed documents assigned to a
// department, restricted to the compound.
func (s *Store) DepartmentIndexedDocumentIDs(ctx context.Context, compoundID, departmentID string) ([]string, error) {
	return s.queryIDs(ctx,
		`SELECT d.id FROM documents d
		 JOIN department_documents dd ON dd.document_id = d.id
		 JOIN departments dep ON dep.id = dd.department_id
		 WHERE dd.department_id = ? AND d.compound_id = ? AND dep.compound_id = ? AND d.status = ?
		 ORDER BY d.id`,
		departmentID, compoundID, compoundID, StatusIndexed)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying document ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TransitionStatus atomically moves a document from t.From to t.To. The
// update only applies while the stored status still equals t.From, so two
// competing transitions on one document can never both succeed.
func (s *Store) TransitionStatus(ctx context.Context, t Transition) error {
	if !CanTransition(t.From, t.To) {
		return fmt.Errorf("illegal status transition %s -> %s", t.From, t.To)
	}

	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	switch t.To {
	case StatusPending:
		res, err = s.db.ExecContext(ctx,
			`UPDATE documents SET status = ?, error_message = '', attempt = attempt + 1, chunk_count = 0, updated_at = ?
			 WHERE id = ? AND status = ?`,
			t.To, now, t.DocumentID, t.From)
	case StatusIndexed:
		res, err = s.db.ExecContext(ctx,
			`UPDATE documents SET status = ?, error_message = '', chunk_count = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			t.To, t.ChunkCount, now, t.DocumentID, t.From)
	default:
		res, err = s.db.ExecContext(ctx,
			`UPDATE documents SET status = ?, error_message = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			t.To, t.Reason, now, t.DocumentID, t.From)
	}
	if err != nil {
		return fmt.Errorf("transitioning document %s: %w", t.DocumentID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// FailInterrupted marks every document stuck in indexing as failed. It is
// run once at startup, before any worker is accepting jobs.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error_message = ?, updated_at = ? WHERE status = ?`,
		StatusFailed, "indexing interrupted by shutdown", time.Now().UTC(), StatusIndexing)
	if err != nil {
		return 0, fmt.Errorf("failing interrupted documents: %w", err)
	}
	return res.RowsAffected()
}

// AssignDocument links a document to a department. Both must belong to
// compoundID.
func (s *Store) AssignDocument(ctx context.Context, compoundID, departmentID, documentID string) error {
	dep, err := s.GetDepartment(ctx, departmentID)
	if err != nil {
		return err
	}
	doc, err := s.GetDocumentByID(ctx, documentID)
	if err != nil {
		return err
	}
	if dep.CompoundID != compoundID || doc.CompoundID != compoundID {
		return apperr.Validation(apperr.CodeCrossCompound,
			"department %s and document %s must both belong to compound %s", departmentID, documentID, compoundID)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO department_documents (department_id, document_id, created_at) VALUES (?, ?, ?)`,
		departmentID, documentID, time.Now().UTC())
	if isUniqueViolation(err) {
		return apperr.Conflict(apperr.CodeAlreadyExists, "document %s is already assigned to department %s", documentID, departmentID)
	}
	if err != nil {
		return fmt.Errorf("assigning document: %w", err)
	}
	return nil
}

// ListDepartmentDocuments returns the documents assigned to a department of
// the compound.
func (s *Store) ListDepartmentDocuments(ctx context.Context, compoundID, departmentID string) ([]Document, error) {
	dep, err := s.GetDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	if dep.CompoundID != compoundID {
		return nil, apperr.NotFound("department %s not found", departmentID)
	}
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE compound_id = ? AND id IN (SELECT document_id FROM department_documents WHERE department_id = ?)
		 ORDER BY title, id`,
		compoundID, departmentID)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ids []string) []any {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	args := make([]any, len(sorted))
	for i, id := range sorted {
		args[i] = id
	}
	return args
}
