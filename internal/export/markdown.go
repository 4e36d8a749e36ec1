// Package export renders the highlights of a document as a Markdown note
// with YAML frontmatter, suitable for pasting into a notes vault.
package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/marginalia/internal/models"
)

// Frontmatter is the YAML header of an exported note.
type Frontmatter struct {
	Title      string    `yaml:"title"`
	Source     string    `yaml:"source,omitempty"`
	Pages      int       `yaml:"pages,omitempty"`
	Highlights int       `yaml:"highlights"`
	Notes      int       `yaml:"notes"`
	Tags       []string  `yaml:"tags"`
	ExportedAt time.Time `yaml:"exported_at"`
}

const untitled = "Untitled document"

// Markdown renders highlights grouped by page, in creation order within a
// page. doc may be nil when no document is active.
func Markdown(doc *models.Document, highlights []models.Highlight, now time.Time) ([]byte, error) {
	fm := Frontmatter{
		Title:      untitled,
		Highlights: len(highlights),
		Tags:       []string{"highlights"},
		ExportedAt: now.UTC().Truncate(time.Second),
	}
	if doc != nil {
		if title := titleFrom(doc.OriginalName); title != "" {
			fm.Title = title
		}
		fm.Source = doc.URL
		fm.Pages = doc.Pages
	}
	for _, h := range highlights {
		if h.HasNote() {
			fm.Notes++
		}
	}

	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("export: frontmatter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n", fm.Title)

	if len(highlights) == 0 {
		b.WriteString("\nNo highlights yet.\n")
		return b.Bytes(), nil
	}

	byPage := make(map[int][]models.Highlight)
	for _, h := range highlights {
		byPage[h.PageNumber] = append(byPage[h.PageNumber], h)
	}
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	for _, p := range pages {
		fmt.Fprintf(&b, "\n## Page %d\n", p)
		for _, h := range byPage[p] {
			b.WriteString("\n")
			writeQuote(&b, h.Text)
			fmt.Fprintf(&b, "\n*%s, %s*\n", colorName(h.Color), h.TimeLabel())
			if h.HasNote() {
				fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(*h.Note))
			}
		}
	}
	return b.Bytes(), nil
}

func writeQuote(b *bytes.Buffer, text string) {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			b.WriteString(">\n")
			continue
		}
		fmt.Fprintf(b, "> %s\n", line)
	}
}

func colorName(c models.Color) string {
	for _, sw := range models.Palette {
		if sw.Value == c {
			return sw.Name
		}
	}
	return string(c)
}

// titleFrom turns an uploaded file name into a single-line heading.
func titleFrom(name string) string {
	return strings.Join(strings.Fields(strings.TrimSuffix(name, ".pdf")), " ")
}
