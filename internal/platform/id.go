package platform

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.New().String()
}

// NewCertificateID returns an id of the form CERT-YYYYMMDD-XXXXXXXX.
func NewCertificateID(now time.Time) string {
	return prefixedID("CERT", now)
}

// NewBatchID returns an id of the form BATCH-YYYYMMDD-XXXXXXXX.
func NewBatchID(now time.Time) string {
	return prefixedID("BATCH", now)
}

func prefixedID(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return prefix + "-" + now.UTC().Format("20060102") + "-" + suffix
}
