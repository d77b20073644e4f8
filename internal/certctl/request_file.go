package certctl

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edvin/certgen/internal/model"
)

// RequestSpec is one certificate request as written in a YAML file.
type RequestSpec struct {
	CertificateID   string         `yaml:"certificate_id"`
	CertificateType string         `yaml:"certificate_type"`
	Title           string         `yaml:"title"`
	UserName        string         `yaml:"user_name"`
	UserEmail       string         `yaml:"user_email"`
	Description     string         `yaml:"description"`
	ItemsCompleted  []string       `yaml:"items_completed"`
	IssuedDate      *time.Time     `yaml:"issued_date"`
	Metadata        map[string]any `yaml:"metadata"`
}

// BatchFile is a batch definition: shared defaults plus the certificates.
type BatchFile struct {
	// Defaults fill empty fields of every certificate.
	Defaults     RequestSpec   `yaml:"defaults"`
	Certificates []RequestSpec `yaml:"certificates"`
}

func (s RequestSpec) Request() model.CertificateRequest {
	return model.CertificateRequest{
		CertificateID:   s.CertificateID,
		CertificateType: model.CertificateType(s.CertificateType),
		Title:           s.Title,
		UserName:        s.UserName,
		UserEmail:       s.UserEmail,
		Description:     s.Description,
		ItemsCompleted:  s.ItemsCompleted,
		IssuedDate:      s.IssuedDate,
		Metadata:        s.Metadata,
	}
}

func (s RequestSpec) withDefaults(d RequestSpec) RequestSpec {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.CertificateType, d.CertificateType)
	fill(&s.Title, d.Title)
	fill(&s.UserName, d.UserName)
	fill(&s.UserEmail, d.UserEmail)
	fill(&s.Description, d.Description)
	if s.ItemsCompleted == nil {
		s.ItemsCompleted = d.ItemsCompleted
	}
	if s.IssuedDate == nil {
		s.IssuedDate = d.IssuedDate
	}
	if s.Metadata == nil {
		s.Metadata = d.Metadata
	}
	return s
}

func LoadRequest(path string) (model.CertificateRequest, error) {
	var spec RequestSpec
	if err := readYAML(path, &spec); err != nil {
		return model.CertificateRequest{}, err
	}
	return spec.Request(), nil
}

func LoadBatch(path string) ([]model.CertificateRequest, error) {
	var f BatchFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}
	if len(f.Certificates) == 0 {
		return nil, fmt.Errorf("%s: no certificates", path)
	}
	out := make([]model.CertificateRequest, len(f.Certificates))
	for i, c := range f.Certificates {
		out[i] = c.withDefaults(f.Defaults).Request()
	}
	return out, nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
