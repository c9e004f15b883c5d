package ingest

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/docchat-ai/docchat/engine/domain"
)

// Options configures chunking. Zero values fall back to the defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap == 0 && o.ChunkSize > DefaultChunkOverlap {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	return o
}

// IngestDocument loads one document and splits it into chunks. Each chunk
// carries source (the file's base name), a gapless 0-based chunk_index in
// emission order, the page it came from, and any loader-supplied extras.
func IngestDocument(path string, opts Options) ([]domain.DocumentChunk, error) {
	opts = opts.withDefaults()
	if err := domain.ValidateChunking(opts.ChunkSize, opts.ChunkOverlap); err != nil {
		return nil, err
	}

	loader, err := loaderFor(path)
	if err != nil {
		return nil, err
	}
	pages, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	splitter := NewSplitter(opts.ChunkSize, opts.ChunkOverlap)
	source := filepath.Base(path)

	var chunks []domain.DocumentChunk
	index := 0
	for _, page := range pages {
		for _, text := range splitter.Split(page.Text) {
			meta := map[string]any{
				domain.MetaSource:     source,
				domain.MetaChunkIndex: index,
				domain.MetaPage:       page.Number,
			}
			for k, v := range page.Meta {
				meta[k] = v
			}
			chunks = append(chunks, domain.DocumentChunk{Content: text, Metadata: meta})
			index++
		}
	}
	return chunks, nil
}

// IngestDirectory walks dir and ingests every file with a supported extension,
// in discovery order. Per-file failures are logged and skipped; the batch
// continues. Unsupported extensions are simply not visited.
func IngestDirectory(dir string, opts Options, logger *slog.Logger) ([]domain.DocumentChunk, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var all []domain.DocumentChunk
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !SupportedExtension(path) {
			return nil
		}
		chunks, err := IngestDocument(path, opts)
		if err != nil {
			logger.Warn("ingest: skipping file", "path", path, "error", err)
			return nil
		}
		all = append(all, chunks...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: walk %s: %w", dir, err)
	}
	return all, nil
}
