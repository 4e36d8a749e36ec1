// Package library manages uploaded documents: it stores the PDF file,
// inspects it and records it in the catalog.
package library

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/catalog"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/pdfinfo"
	"github.com/starford/marginalia/internal/storage"
)

// FilesPrefix is the URL path under which stored PDFs are served.
const FilesPrefix = "/files/"

var stampedNameRe = regexp.MustCompile(`^\d{10,}-(.+)$`)

// Library coordinates storage, inspection and the catalog.
type Library struct {
	store    storage.Provider
	cat      catalog.Catalog
	logger   *slog.Logger
	maxBytes int64
	now      func() time.Time

	mu       sync.Mutex
	reserved map[string]struct{}
}

// New creates a Library. maxBytes bounds uploads; 0 means unbounded.
func New(store storage.Provider, cat catalog.Catalog, logger *slog.Logger, maxBytes int64) *Library {
	return &Library{
		store:    store,
		cat:      cat,
		logger:   logger,
		maxBytes: maxBytes,
		now:      time.Now,
		reserved: make(map[string]struct{}),
	}
}

// Upload stores a new PDF under a time-stamped name and registers it.
// The content must start with the PDF header and stay within the size limit.
// An upload never replaces an existing file: when the stamped name is taken
// the stamp is moved forward until it is free.
func (l *Library) Upload(originalName string, r io.Reader) (*models.Document, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(pdfinfo.Magic))
	if !pdfinfo.IsPDF(head) {
		return nil, fmt.Errorf("library: %s is not a PDF: %w", originalName, apperr.ErrUnsupported)
	}

	var src io.Reader = br
	if l.maxBytes > 0 {
		src = &limitReader{r: br, remaining: l.maxBytes}
	}

	uploadedAt := l.now()
	name, release, err := l.reserveName(uploadedAt, storage.SanitizeName(originalName))
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := l.store.Write(name, src); err != nil {
		if errors.Is(err, apperr.ErrTooLarge) {
			return nil, fmt.Errorf("library: %s exceeds %d bytes: %w", originalName, l.maxBytes, apperr.ErrTooLarge)
		}
		return nil, err
	}

	doc, err := l.register(name, originalName, uploadedAt)
	if err != nil {
		if delErr := l.store.Delete(name); delErr != nil {
			l.logger.Warn("library: cleanup after failed upload", slog.String("name", name), slog.String("error", delErr.Error()))
		}
		return nil, err
	}
	l.logger.Info("library: document uploaded",
		slog.String("identifier", doc.Identifier),
		slog.Int64("size", doc.SizeBytes),
		slog.Int("pages", doc.Pages))
	return doc, nil
}

// reserveName picks a stamped name that is neither on disk nor held by a
// concurrent upload. The returned func releases the reservation.
func (l *Library) reserveName(at time.Time, base string) (string, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for stamp := at.UnixMilli(); ; stamp++ {
		name := strconv.FormatInt(stamp, 10) + "-" + base
		if _, held := l.reserved[name]; held {
			continue
		}
		path, err := l.store.Path(name)
		if err != nil {
			return "", nil, err
		}
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", nil, err
		}
		l.reserved[name] = struct{}{}
		return name, func() {
			l.mu.Lock()
			delete(l.reserved, name)
			l.mu.Unlock()
		}, nil
	}
}

// Import registers a file that is already in the documents directory. A
// file whose catalog row still matches its checksum is left untouched.
func (l *Library) Import(name string) (*models.Document, error) {
	if existing, err := l.cat.Get(name); err == nil {
		if meta, err := l.stat(name); err == nil && meta.Checksum == existing.Checksum {
			return existing, nil
		}
	}
	return l.register(name, OriginalName(name), l.now())
}

func (l *Library) register(name, originalName string, uploadedAt time.Time) (*models.Document, error) {
	path, err := l.store.Path(name)
	if err != nil {
		return nil, err
	}
	info, err := pdfinfo.Inspect(path)
	if err != nil {
		return nil, err
	}
	meta, err := l.stat(name)
	if err != nil {
		return nil, err
	}

	doc := models.Document{
		Identifier:   name,
		OriginalName: originalName,
		URL:          FilesPrefix + name,
		SizeBytes:    meta.Size,
		Checksum:     meta.Checksum,
		Pages:        info.Pages,
		PageSizes:    info.PageSizes,
		UploadedAt:   uploadedAt.UTC(),
	}
	if err := l.cat.Upsert(doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (l *Library) stat(name string) (models.FileMetadata, error) {
	metas, err := l.store.List()
	if err != nil {
		return models.FileMetadata{}, err
	}
	for _, m := range metas {
		if m.Name == name {
			return m, nil
		}
	}
	return models.FileMetadata{}, fmt.Errorf("library: %s: %w", name, apperr.ErrNotFound)
}

// Get returns a catalogued document.
func (l *Library) Get(identifier string) (*models.Document, error) {
	return l.cat.Get(identifier)
}

// List returns catalogued documents, newest first.
func (l *Library) List(limit, offset int) ([]models.Document, int, error) {
	return l.cat.List(limit, offset)
}

// Remove deletes a document file and its catalog row.
func (l *Library) Remove(identifier string) error {
	if _, err := l.cat.Get(identifier); err != nil {
		return err
	}
	if err := l.store.Delete(identifier); err != nil {
		l.logger.Warn("library: delete file failed", slog.String("identifier", identifier), slog.String("error", err.Error()))
	}
	return l.cat.Delete(identifier)
}

// Open returns the stored file of a document.
func (l *Library) Open(identifier string) (storage.ReadSeekCloser, error) {
	return l.store.Open(identifier)
}

// PageText returns the plain text of one page of a document.
func (l *Library) PageText(identifier string, page int) (string, error) {
	path, err := l.store.Path(identifier)
	if err != nil {
		return "", err
	}
	return pdfinfo.PageText(path, page)
}

// OriginalName strips the upload time stamp from a stored name.
func OriginalName(name string) string {
	if m := stampedNameRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

// limitReader fails with apperr.ErrTooLarge once more than remaining bytes
// have been read, so oversized uploads never land on disk.
type limitReader struct {
	r         io.Reader
	remaining int64
}

func (lr *limitReader) Read(p []byte) (int, error) {
	if lr.remaining < 0 {
		return 0, apperr.ErrTooLarge
	}
	if int64(len(p)) > lr.remaining+1 {
		p = p[:lr.remaining+1]
	}
	n, err := lr.r.Read(p)
	lr.remaining -= int64(n)
	if lr.remaining < 0 {
		return n, apperr.ErrTooLarge
	}
	return n, err
}
