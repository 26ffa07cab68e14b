package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/kalambet/pageqa/internal/domain"
)

// UpsertDocuments writes docs in a single transaction. A document whose ID
// already exists replaces the stored row and its full-text entry, and any
// stale vector for that ID is dropped.
func (s *Store) UpsertDocuments(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range docs {
		meta, err := json.Marshal(metadataOrEmpty(d.Metadata))
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, content, metadata, source, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				metadata = excluded.metadata,
				source = excluded.source,
				updated_at = excluded.updated_at`,
			d.ID, d.Content, string(meta), documentSource(d), now, now,
		); err != nil {
			return fmt.Errorf("upserting document %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE id = ?`, d.ID); err != nil {
			return fmt.Errorf("clearing fts entry %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents_fts (id, content) VALUES (?, ?)`, d.ID, d.Content); err != nil {
			return fmt.Errorf("indexing document %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_vectors WHERE id = ?`, d.ID); err != nil {
			return fmt.Errorf("clearing vector %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetDocument(ctx context.Context, id string) (StoredDocument, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, metadata, source, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return StoredDocument{}, ErrNotFound
	}
	return d, err
}

// GetDocuments returns the documents with the given IDs, in the order the
// IDs were given. Unknown IDs are skipped.
func (s *Store) GetDocuments(ctx context.Context, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata, source, created_at, updated_at
		FROM documents WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Document, len(ids))
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byID[d.ID] = d.Document
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Document, 0, len(byID))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListDocuments returns the most recently updated documents first.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]StoredDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata, source, created_at, updated_at
		FROM documents ORDER BY updated_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []StoredDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// DeleteDocument removes a document together with its full-text entry and vector.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting fts entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting vector: %w", err)
	}
	return tx.Commit()
}

// SearchBM25 ranks documents against query with the FTS5 bm25() function.
// Query terms are ORed, so a document matching any term is a candidate.
// Returns nil when the query has no searchable terms.
func (s *Store) SearchBM25(ctx context.Context, query string, limit int) ([]ScoredDocument, error) {
	match := ftsQuery(query)
	if match == "" || limit < 1 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.content, d.metadata, bm25(documents_fts) AS rank
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.id
		WHERE documents_fts MATCH ?
		ORDER BY rank ASC, d.id ASC
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()

	var results []ScoredDocument
	for rows.Next() {
		var hit ScoredDocument
		var meta string
		var rank float64
		if err := rows.Scan(&hit.ID, &hit.Content, &meta, &rank); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		if hit.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", hit.ID, err)
		}
		// bm25() is negative; smaller is a better match.
		hit.Score = -rank
		results = append(results, hit)
	}
	return results, rows.Err()
}

// ftsQuery turns free text into an FTS5 expression of quoted terms joined by OR.
func ftsQuery(q string) string {
	terms := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(terms))
	var quoted []string
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (StoredDocument, error) {
	var d StoredDocument
	var meta, createdAt, updatedAt string
	if err := r.Scan(&d.ID, &d.Content, &meta, &d.Source, &createdAt, &updatedAt); err != nil {
		return StoredDocument{}, err
	}
	var err error
	if d.Metadata, err = decodeMetadata(meta); err != nil {
		return StoredDocument{}, fmt.Errorf("decoding metadata for %s: %w", d.ID, err)
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return StoredDocument{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return StoredDocument{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return d, nil
}

func decodeMetadata(s string) (map[string]string, error) {
	m := map[string]string{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func documentSource(d domain.Document) string {
	if u := d.Metadata[domain.MetaURL]; u != "" {
		return u
	}
	return d.Metadata[domain.MetaSourcePath]
}
