// Package storage keeps uploaded PDF files in a flat documents directory.
package storage

import (
	"io"

	"github.com/starford/marginalia/internal/models"
)

// Provider is the interface for document file operations. Names are plain
// file names inside the documents directory.
type Provider interface {
	// List returns metadata for every .pdf file in the directory.
	List() ([]models.FileMetadata, error)
	// Open returns the file for reading; the caller closes it.
	Open(name string) (ReadSeekCloser, error)
	// Path returns the absolute path of name.
	Path(name string) (string, error)
	// Write atomically stores everything read from r under name and
	// returns the number of bytes written.
	Write(name string, r io.Reader) (int64, error)
	// Delete removes name.
	Delete(name string) error
}

// ReadSeekCloser is what http.ServeContent and the PDF readers need.
type ReadSeekCloser interface {
	io.ReadSeeker
	io.Closer
}
