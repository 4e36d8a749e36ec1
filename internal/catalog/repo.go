package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/geometry"
	"github.com/starford/marginalia/internal/models"
)

// Catalog defines the document catalog operations.
// Consumers depend on this interface rather than the concrete *DB type.
type Catalog interface {
	Upsert(doc models.Document) error
	Get(identifier string) (*models.Document, error)
	List(limit, offset int) ([]models.Document, int, error)
	Delete(identifier string) error
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)

const selectColumns = `identifier, original_name, url, size, checksum, pages, page_sizes, uploaded_at`

// Upsert inserts or replaces a document row.
func (db *DB) Upsert(doc models.Document) error {
	sizes := doc.PageSizes
	if sizes == nil {
		sizes = []geometry.Size{}
	}
	sizesJSON, err := json.Marshal(sizes)
	if err != nil {
		return fmt.Errorf("catalog: encode page sizes: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO documents (identifier, original_name, url, size, checksum, pages, page_sizes, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			original_name = excluded.original_name,
			url           = excluded.url,
			size          = excluded.size,
			checksum      = excluded.checksum,
			pages         = excluded.pages,
			page_sizes    = excluded.page_sizes,
			uploaded_at   = excluded.uploaded_at
	`, doc.Identifier, doc.OriginalName, doc.URL, doc.SizeBytes, doc.Checksum, doc.Pages, string(sizesJSON), doc.UploadedAt.UTC())
	if err != nil {
		return fmt.Errorf("catalog: upsert %s: %w", doc.Identifier, err)
	}
	return nil
}

// Get returns one document or apperr.ErrNotFound.
func (db *DB) Get(identifier string) (*models.Document, error) {
	row := db.conn.QueryRow(`SELECT `+selectColumns+` FROM documents WHERE identifier = ?`, identifier)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: document %q: %w", identifier, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns documents newest first, with the total count.
func (db *DB) List(limit, offset int) ([]models.Document, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+selectColumns+` FROM documents
		ORDER BY uploaded_at DESC, identifier ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *doc)
	}
	return out, total, rows.Err()
}

// Delete removes a document row. Missing rows are not an error.
func (db *DB) Delete(identifier string) error {
	if _, err := db.conn.Exec(`DELETE FROM documents WHERE identifier = ?`, identifier); err != nil {
		return fmt.Errorf("catalog: delete %s: %w", identifier, err)
	}
	return nil
}

// AllChecksums returns identifier → checksum for every row.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT identifier, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*models.Document, error) {
	var (
		doc       models.Document
		sizesJSON string
	)
	if err := s.Scan(&doc.Identifier, &doc.OriginalName, &doc.URL, &doc.SizeBytes,
		&doc.Checksum, &doc.Pages, &sizesJSON, &doc.UploadedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sizesJSON), &doc.PageSizes); err != nil {
		return nil, fmt.Errorf("catalog: decode page sizes of %s: %w", doc.Identifier, err)
	}
	if len(doc.PageSizes) == 0 {
		doc.PageSizes = nil
	}
	return &doc, nil
}
