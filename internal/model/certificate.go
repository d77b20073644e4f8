package model

import "time"

type CertificateType string

const (
	CertTypeCollection  CertificateType = "collection"
	CertTypeCourse      CertificateType = "course"
	CertTypeAchievement CertificateType = "achievement"
)

// CertificateTypes lists every recognized certificate type.
var CertificateTypes = []CertificateType{CertTypeCollection, CertTypeCourse, CertTypeAchievement}

func (t CertificateType) Valid() bool {
	for _, known := range CertificateTypes {
		if t == known {
			return true
		}
	}
	return false
}

// CertificateRequest is the input to certificate generation.
type CertificateRequest struct {
	UserName        string          `json:"user_name" validate:"max=200"`
	UserEmail       string          `json:"user_email,omitempty" validate:"omitempty,email"`
	CertificateType CertificateType `json:"certificate_type" validate:"required,certtype"`
	Title           string          `json:"title" validate:"required,nonblank,max=500"`
	Description     string          `json:"description,omitempty" validate:"max=2000"`
	ItemsCompleted  []string        `json:"items_completed,omitempty" validate:"max=500,dive,max=500"`
	IssuedDate      *time.Time      `json:"issued_date,omitempty"`
	CertificateID   string          `json:"certificate_id,omitempty" validate:"omitempty,certid"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// CertificateRecord is the orchestrator-owned state of one certificate.
type CertificateRecord struct {
	CertificateID   string          `json:"certificate_id"`
	Status          RecordStatus    `json:"status"`
	CertificateType CertificateType `json:"certificate_type,omitempty"`
	StorageRef      string          `json:"storage_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Error           *string         `json:"error,omitempty"`
	ErrorKind       string          `json:"error_kind,omitempty"`
}

// CertificateVerification is the public view of an issued certificate.
type CertificateVerification struct {
	CertificateID   string          `json:"certificate_id"`
	UserName        string          `json:"user_name"`
	UserEmail       string          `json:"user_email"`
	CertificateType CertificateType `json:"certificate_type"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	ItemsCompleted  []string        `json:"items_completed"`
	IssuedDate      time.Time       `json:"issued_date"`
	VerificationURL string          `json:"verification_url"`
	DownloadURL     string          `json:"download_url,omitempty"`
}

// DownloadLink is a time-limited URL for a stored certificate.
type DownloadLink struct {
	CertificateID string    `json:"certificate_id"`
	DownloadURL   string    `json:"download_url"`
	ExpiresIn     int       `json:"expires_in"`
	GeneratedAt   time.Time `json:"generated_at"`
}
