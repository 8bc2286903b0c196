package catalog

import "time"

// Status is the indexing state of a document.
type Status string

const (
	StatusPending  Status = "pending"
	StatusIndexing Status = "indexing"
	StatusIndexed  Status = "indexed"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no indexing work is outstanding.
func (s Status) Terminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

// allowedTransitions lists every legal status change. indexed|failed ->
// pending opens a new attempt and is only requested by re-indexing.
var allowedTransitions = map[Status][]Status{
	StatusPending:  {StatusIndexing, StatusFailed},
	StatusIndexing: {StatusIndexed, StatusFailed},
	StatusIndexed:  {StatusPending},
	StatusFailed:   {StatusPending},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Compound is the root tenant boundary.
type Compound struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Department is a named subdivision of a compound.
type Department struct {
	ID         string    `json:"id"`
	CompoundID string    `json:"compound_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
}

// Document is an uploaded file and its indexing state.
type Document struct {
	ID           string    `json:"id"`
	CompoundID   string    `json:"compound_id"`
	Title        string    `json:"title"`
	FileName     string    `json:"file_name"`
	Source       string    `json:"source"`
	Size         int64     `json:"size"`
	SHA256       string    `json:"sha256"`
	IndexName    string    `json:"index_name"`
	IndexerName  string    `json:"indexer_name"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Transition is a compare-and-set status change of one document.
type Transition struct {
	DocumentID string
	From       Status
	To         Status
	// Reason is retained as the error message when To is failed.
	Reason     string
	ChunkCount int
}
