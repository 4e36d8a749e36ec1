package models

import (
	"time"

	"github.com/starford/marginalia/internal/geometry"
)

// Document is the handle of an uploaded PDF. The highlight core only uses
// it to learn that a new document became active and how many pages it has.
type Document struct {
	Identifier   string          `json:"identifier"`
	OriginalName string          `json:"original_name"`
	URL          string          `json:"url"`
	SizeBytes    int64           `json:"size"`
	Checksum     string          `json:"checksum"`
	Pages        int             `json:"pages"`
	PageSizes    []geometry.Size `json:"page_sizes,omitempty"`
	UploadedAt   time.Time       `json:"uploaded_at"`
}

// FileMetadata is a lightweight description of a stored PDF file.
type FileMetadata struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
