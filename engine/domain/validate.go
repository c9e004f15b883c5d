package domain

import (
	"fmt"
	"strings"
)

// ValidateQuery checks a user question before retrieval.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// ValidateCollectionName checks a collection name before store access.
// Qdrant accepts most names; we reject the ones that are always mistakes.
func ValidateCollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCollection)
	}
	if strings.ContainsAny(name, " \t\n/") {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}

// ValidateChunking checks splitter parameters. Overlap must leave room for
// forward progress, so it has to be strictly smaller than the chunk size.
func ValidateChunking(chunkSize, chunkOverlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d", ErrInvalidChunking, chunkSize)
	}
	if chunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap %d", ErrInvalidChunking, chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return fmt.Errorf("%w: overlap %d >= chunk size %d", ErrInvalidChunking, chunkOverlap, chunkSize)
	}
	return nil
}
