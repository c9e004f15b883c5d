// Package ingest loads documents, splits them into overlapping chunks, and
// feeds them to the vector store. It is the entry point of the indexing side
// of the pipeline: raw file -> pages -> chunks -> embeddings -> storage.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docchat-ai/docchat/engine/domain"
	"github.com/ledongthuc/pdf"
)

// Page is one logical page of a loaded document. Plain-text formats produce a
// single page with Number 0; PDFs produce one Page per physical page, 1-based.
type Page struct {
	Text   string
	Number int
	Meta   map[string]any
}

// Loader reads a document from disk into logical pages.
type Loader interface {
	Load(path string) ([]Page, error)
}

// loaders maps a lowercase file extension to its Loader. The supported set is
// exactly .pdf, .txt, and .md; anything else is an UnsupportedFormatError.
var loaders = map[string]Loader{
	".pdf": pdfLoader{},
	".txt": textLoader{},
	".md":  textLoader{},
}

// SupportedExtension reports whether a loader is registered for path's extension.
func SupportedExtension(path string) bool {
	_, ok := loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// loaderFor selects a loader by file extension. No silent fallback: an
// unrecognized extension is a contract violation, not a routine outcome.
func loaderFor(path string) (Loader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := loaders[ext]
	if !ok {
		return nil, domain.NewUnsupportedFormatError(ext)
	}
	return l, nil
}

// textLoader loads .txt and .md files as a single page.
type textLoader struct{}

func (textLoader) Load(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	return []Page{{Text: string(data), Number: 0}}, nil
}

// pdfLoader extracts plain text per page.
type pdfLoader struct{}

func (pdfLoader) Load(path string) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open pdf %s: %w", path, err)
	}
	defer f.Close()

	var pages []Page
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("ingest: pdf %s page %d: %w", path, i, err)
		}
		pages = append(pages, Page{Text: text, Number: i})
	}
	return pages, nil
}
