// Package pdfinfo reads the facts the highlighter needs from an uploaded
// PDF: page count, intrinsic page sizes and per-page plain text.
package pdfinfo

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/geometry"
)

// Magic is the header every PDF file starts with.
var Magic = []byte("%PDF-")

// Info describes an inspected document. PageSizes are media box extents in
// PDF points and may be nil when the layout could not be validated.
type Info struct {
	Pages     int
	PageSizes []geometry.Size
}

// IsPDF reports whether head starts with the PDF header.
func IsPDF(head []byte) bool {
	return bytes.HasPrefix(head, Magic)
}

// Inspect opens the PDF at path and counts its pages.
func Inspect(path string) (*Info, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdfinfo: open %s: %v: %w", path, err, apperr.ErrUnsupported)
	}
	defer f.Close()

	n := r.NumPage()
	if n <= 0 {
		return nil, fmt.Errorf("pdfinfo: %s has no pages: %w", path, apperr.ErrUnsupported)
	}

	info := &Info{Pages: n}
	if sizes, err := PageSizes(path); err == nil && len(sizes) == n {
		info.PageSizes = sizes
	}
	return info, nil
}

// PageSizes returns the media box of every page using pdfcpu, which
// validates the cross-reference table on the way.
func PageSizes(path string) ([]geometry.Size, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdfinfo: open %s: %w", path, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfinfo: pdfcpu read: %w", err)
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("pdfinfo: page dims: %w", err)
	}

	out := make([]geometry.Size, len(dims))
	for i, d := range dims {
		out[i] = geometry.Size{Width: d.Width, Height: d.Height}
	}
	return out, nil
}

// PageText extracts the plain text of one page (1-indexed).
func PageText(path string, page int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("pdfinfo: open %s: %v: %w", path, err, apperr.ErrUnsupported)
	}
	defer f.Close()

	if page < 1 || page > r.NumPage() {
		return "", fmt.Errorf("pdfinfo: page %d out of range 1..%d: %w", page, r.NumPage(), apperr.ErrValidation)
	}
	p := r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("pdfinfo: extract page %d: %w", page, err)
	}
	return strings.TrimSpace(text), nil
}
