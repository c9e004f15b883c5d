package ingest

import "strings"

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// defaultSeparators in priority order: paragraph breaks, line breaks, sentence
// boundaries, spaces, and finally raw characters. A finer separator is used
// only when the coarser one cannot produce a chunk within the size bound.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter cuts page text into chunks of at most chunkSize characters, with
// adjacent chunks sharing roughly chunkOverlap trailing/leading characters.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter creates a Splitter. Callers must validate the parameters first
// (see domain.ValidateChunking); the zero values here are not usable.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split recursively splits text and returns the ordered chunk contents.
// Empty or whitespace-only chunks are dropped.
func (s *Splitter) Split(text string) []string {
	return s.splitText(text, s.separators)
}

func (s *Splitter) splitText(text string, separators []string) []string {
	// Pick the coarsest separator that occurs in the text; "" always matches.
	sep := separators[len(separators)-1]
	var finer []string
	for i, c := range separators {
		if c == "" {
			sep = ""
			finer = nil
			break
		}
		if strings.Contains(text, c) {
			sep = c
			finer = separators[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		for _, r := range text {
			splits = append(splits, string(r))
		}
	} else {
		splits = strings.Split(text, sep)
	}

	// Merge small pieces; recurse into pieces that are still oversized.
	var out []string
	var small []string
	for _, piece := range splits {
		if len(piece) < s.chunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			out = append(out, s.merge(small, sep)...)
			small = nil
		}
		if len(finer) == 0 {
			// Atomic fragment with no finer separator left; emit as-is.
			out = append(out, piece)
		} else {
			out = append(out, s.splitText(piece, finer)...)
		}
	}
	if len(small) > 0 {
		out = append(out, s.merge(small, sep)...)
	}
	return out
}

// merge greedily packs consecutive pieces into chunks up to chunkSize, then
// slides the window back so the next chunk starts within chunkOverlap
// characters of the previous chunk's tail.
func (s *Splitter) merge(splits []string, sep string) []string {
	sepLen := len(sep)

	var chunks []string
	var window []string
	total := 0

	for _, piece := range splits {
		l := len(piece)
		join := 0
		if len(window) > 0 {
			join = sepLen
		}
		if total+l+join > s.chunkSize && len(window) > 0 {
			if c := joinTrim(window, sep); c != "" {
				chunks = append(chunks, c)
			}
			for total > s.chunkOverlap || (total+l+join > s.chunkSize && total > 0) {
				drop := len(window[0])
				if len(window) > 1 {
					drop += sepLen
				}
				total -= drop
				window = window[1:]
				if len(window) > 0 {
					join = sepLen
				} else {
					join = 0
				}
			}
		}
		window = append(window, piece)
		total += l
		if len(window) > 1 {
			total += sepLen
		}
	}
	if c := joinTrim(window, sep); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

func joinTrim(parts []string, sep string) string {
	return strings.TrimSpace(strings.Join(parts, sep))
}
