package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/checksum"
	"github.com/starford/marginalia/internal/models"
)

// TempPrefix marks in-flight writes; watchers skip these names.
const TempPrefix = ".marginalia-tmp-"

var unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the documents directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute documents directory.
func (f *FS) Root() string {
	return f.root
}

// SanitizeName reduces an uploaded file name to a safe flat name.
func SanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = unsafeNameRe.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "_" {
		base = "document.pdf"
	}
	if !strings.EqualFold(filepath.Ext(base), ".pdf") {
		base += ".pdf"
	}
	return base
}

// safePath resolves a plain file name against the root and rejects
// anything that is not a direct child of it.
func (f *FS) safePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("storage: empty file name: %w", apperr.ErrValidation)
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || cleaned == ".." || cleaned == "." {
		return "", fmt.Errorf("storage: invalid file name %s: %w", name, apperr.ErrValidation)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes documents root %s: %w", name, apperr.ErrValidation)
	}
	return abs, nil
}

// List returns metadata for every .pdf file directly under the root.
func (f *FS) List() ([]models.FileMetadata, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []models.FileMetadata
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, TempPrefix) || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", name, err)
		}
		sum, err := fileChecksum(filepath.Join(f.root, name))
		if err != nil {
			return nil, err
		}
		out = append(out, models.FileMetadata{
			Name:      name,
			Size:      info.Size(),
			Checksum:  sum,
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Open opens a stored file for reading.
func (f *FS) Open(name string) (ReadSeekCloser, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", name, err)
	}
	return file, nil
}

// Path returns the absolute path of a stored file.
func (f *FS) Path(name string) (string, error) {
	return f.safePath(name)
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(name string, r io.Reader) (int64, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(f.root, TempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return 0, fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return 0, fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return n, nil
}

// Delete removes a stored file.
func (f *FS) Delete(name string) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("storage: open %s: %w", path, err)
	}
	defer file.Close()
	sum, err := checksum.SumReader(file)
	if err != nil {
		return "", fmt.Errorf("storage: checksum %s: %w", path, err)
	}
	return sum, nil
}
