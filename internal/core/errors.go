package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrQueueFull is returned when the background dispatcher cannot accept
// another batch.
var ErrQueueFull = errors.New("batch queue is full")

// ErrDispatcherClosed is returned by a dispatcher after shutdown.
var ErrDispatcherClosed = errors.New("batch dispatcher is shut down")

// Error kinds recorded on FAILED certificate records.
const (
	KindValidation = "validation"
	KindRender     = "render"
	KindStorage    = "storage"
	// KindInternal marks items whose processing was aborted.
	KindInternal = "internal"
)

// FieldError describes one offending request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is the caller's fault and is never retried.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type RenderError struct {
	CertificateID string
	Err           error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render certificate %s: %v", e.CertificateID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// StorageError is surfaced after the storage retry budget is exhausted.
type StorageError struct {
	Op  string
	Ref string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CacheError is never fatal to a request; it is returned only by operations
// whose sole source of truth is the cache.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// GenerationError reports a generation that ended FAILED. Err is the
// underlying RenderError or StorageError.
type GenerationError struct {
	CertificateID string
	Kind          string
	Err           error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate certificate %s: %v", e.CertificateID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
