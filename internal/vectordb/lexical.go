package vectordb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

func (s *Store) insertLexical(ctx context.Context, indexName, documentID string, chunks []Chunk) error {
	return s.lexical.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (index_name, document_id, chunk_index, start_offset, end_offset, content)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing chunk insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, indexName, documentID, c.Index, c.Start, c.End, c.Text); err != nil {
				return fmt.Errorf("inserting chunk %d of %s: %w", c.Index, documentID, err)
			}
		}
		return nil
	})
}

func (s *Store) SearchKeyword(ctx context.Context, indexName, text string, filter Filter, topK int) ([]Hit, error) {
	match := ftsMatchQuery(text)
	if match == "" || topK <= 0 {
		return nil, nil
	}

	query := `
		SELECT c.document_id, c.chunk_index, c.start_offset, c.end_offset, c.content, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ? AND c.index_name = ?`
	args := []any{match, indexName}
	if len(filter.DocumentIDs) > 0 {
		query += ` AND c.document_id IN (?` + strings.Repeat(",?", len(filter.DocumentIDs)-1) + `)`
		for _, id := range filter.DocumentIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY rank, c.document_id, c.chunk_index LIMIT ?`
	args = append(args, topK)

	rows, err := s.lexical.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword query on %s: %w", indexName, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h    Hit
			rank float64
		)
		if err := rows.Scan(&h.DocumentID, &h.ChunkIndex, &h.Start, &h.End, &h.Text, &rank); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		// bm25 is negative with better matches lower.
		if rank < 0 {
			rank = -rank
		}
		h.Score = rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ftsMatchQuery turns free text into an FTS5 expression that ORs each word
// as a quoted term, so no user input is parsed as FTS5 syntax.
func ftsMatchQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"what": true, "which": true, "who": true, "how": true, "does": true,
	"is": true, "of": true, "to": true, "in": true, "on": true, "an": true,
	"a": true, "it": true, "at": true, "by": true, "or": true, "be": true,
	"do": true, "with": true, "this": true, "that": true, "from": true,
}
