package core

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/edvin/certgen/internal/model"
	"github.com/edvin/certgen/internal/storage"
)

// Artifact metadata keys. S3 caps user metadata at 2 KiB, so free text is
// truncated before it is attached.
const (
	metaCertificateID   = "certificate-id"
	metaCertificateType = "certificate-type"
	metaUserName        = "user-name"
	metaUserEmail       = "user-email"
	metaTitle           = "title"
	metaDescription     = "description"
	metaItemsCompleted  = "items-completed"
	metaIssuedDate      = "issued-date"
	metaCreatedAt       = "created-at"
	metaService         = "service"

	metaTextLimit  = 300
	metaItemsLimit = 900
)

func (s *CertificateService) artifactMetadata(req model.CertificateRequest, created time.Time) storage.Metadata {
	m := storage.Metadata{
		metaCertificateID:   req.CertificateID,
		metaCertificateType: string(req.CertificateType),
		metaUserName:        req.UserName,
		metaUserEmail:       req.UserEmail,
		metaTitle:           truncate(req.Title, metaTextLimit),
		metaIssuedDate:      req.IssuedDate.UTC().Format(time.RFC3339),
		metaCreatedAt:       created.UTC().Format(time.RFC3339),
	}
	if req.Description != "" {
		m[metaDescription] = truncate(req.Description, metaTextLimit)
	}
	if items := encodeItems(req.ItemsCompleted, metaItemsLimit); items != "" {
		m[metaItemsCompleted] = items
	}
	if s.opts.ServiceName != "" {
		m[metaService] = s.opts.ServiceName
	}
	return m
}

// encodeItems JSON-encodes as many leading items as fit in limit bytes.
func encodeItems(items []string, limit int) string {
	for n := len(items); n > 0; n-- {
		raw, err := json.Marshal(items[:n])
		if err == nil && len(raw) <= limit {
			return string(raw)
		}
	}
	return ""
}

func decodeItems(raw string) []string {
	items := []string{}
	if raw == "" {
		return items
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []string{}
	}
	return items
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func parseMetaTime(m storage.Metadata, key string, fallback time.Time) time.Time {
	if v, ok := m[key]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}

func recordFromInfo(id string, info *storage.ObjectInfo) *model.CertificateRecord {
	completed := info.ModTime.UTC()
	return &model.CertificateRecord{
		CertificateID:   id,
		Status:          model.StatusCompleted,
		CertificateType: model.CertificateType(info.Metadata[metaCertificateType]),
		StorageRef:      info.Ref,
		CreatedAt:       parseMetaTime(info.Metadata, metaCreatedAt, completed),
		UpdatedAt:       completed,
		CompletedAt:     &completed,
	}
}

func verificationFromMetadata(id string, info *storage.ObjectInfo) *model.CertificateVerification {
	m := info.Metadata
	return &model.CertificateVerification{
		CertificateID:   id,
		UserName:        m[metaUserName],
		UserEmail:       m[metaUserEmail],
		CertificateType: model.CertificateType(m[metaCertificateType]),
		Title:           m[metaTitle],
		Description:     m[metaDescription],
		ItemsCompleted:  decodeItems(m[metaItemsCompleted]),
		IssuedDate:      parseMetaTime(m, metaIssuedDate, info.ModTime),
	}
}
