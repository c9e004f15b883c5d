package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the pipeline.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyQuery        = errors.New("empty query")
	ErrInvalidCollection = errors.New("invalid collection name")
	ErrInvalidChunking   = errors.New("invalid chunking parameters")
)

// UnsupportedFormatError names the extension that has no registered loader.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.Ext)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// NewUnsupportedFormatError creates an UnsupportedFormatError for ext.
func NewUnsupportedFormatError(ext string) *UnsupportedFormatError {
	return &UnsupportedFormatError{Ext: ext}
}
