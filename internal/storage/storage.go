// Package storage persists rendered certificate artifacts in a key-addressed
// blob store. Two backends are provided: the local filesystem and S3-compatible
// object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/edvin/certgen/internal/config"
)

// ErrNotFound is returned when a reference does not resolve to an artifact.
var ErrNotFound = errors.New("artifact not found")

// ErrInvalidReference is returned for keys and references a backend can
// never resolve.
var ErrInvalidReference = errors.New("invalid storage reference")

// ErrPermanent marks backend failures that repeat on every attempt, such as
// denied credentials or a missing bucket.
var ErrPermanent = errors.New("permanent storage failure")

// ContentTypePDF is the content type of every stored certificate.
const ContentTypePDF = "application/pdf"

// Metadata is a flat set of string attributes stored with an artifact.
// Keys are lower-case.
type Metadata map[string]string

// ObjectInfo describes a stored artifact without its content.
type ObjectInfo struct {
	Ref      string
	Size     int64
	ModTime  time.Time
	Metadata Metadata
}

// Backend is the capability set every storage variant provides.
//
// Put must be atomic: once it returns successfully, Exists on the returned
// reference reports true and Get returns the full content. A concurrent reader
// never observes a partially written artifact.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, meta Metadata) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Stat(ctx context.Context, ref string) (*ObjectInfo, error)
	Delete(ctx context.Context, ref string) error
	// Reference returns the reference Put would return for key.
	Reference(key string) string
	// URL returns a URL the artifact can be downloaded from.
	URL(ctx context.Context, ref string, expiry time.Duration) (string, error)
	Ping(ctx context.Context) error
	Name() string
}

var certificateIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidCertificateID reports whether id can be used to derive a storage key.
func ValidCertificateID(id string) bool {
	return certificateIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

// CertificateKey derives the storage key for a certificate id.
func CertificateKey(id string) (string, error) {
	if !ValidCertificateID(id) {
		return "", fmt.Errorf("invalid certificate id %q: %w", id, ErrInvalidReference)
	}
	return "certificates/" + id + ".pdf", nil
}

// New constructs the backend selected by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal:
		return NewLocal(cfg.LocalStoragePath)
	case config.StorageS3:
		return NewS3(ctx, S3Options{
			Bucket:       cfg.S3BucketName,
			Region:       cfg.AWSRegion,
			Endpoint:     cfg.S3EndpointURL,
			AccessKeyID:  cfg.AWSAccessKeyID,
			SecretKey:    cfg.AWSSecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}
