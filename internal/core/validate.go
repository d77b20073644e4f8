package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/certgen/internal/model"
	"github.com/edvin/certgen/internal/storage"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("certtype", func(fl validator.FieldLevel) bool {
		return model.CertificateType(fl.Field().String()).Valid()
	})
	v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterValidation("certid", func(fl validator.FieldLevel) bool {
		return storage.ValidCertificateID(fl.Field().String())
	})
	return v
}

// ValidateRequest checks a certificate request and lists every offending
// field in a *ValidationError.
func ValidateRequest(req model.CertificateRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fieldPath(fe), Message: fieldMessage(fe)})
	}
	return out
}

// fieldPath drops the struct name prefix, so "CertificateRequest.items_completed[3]"
// becomes "items_completed[3]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "nonblank":
		return "must not be empty"
	case "certtype":
		types := make([]string, len(model.CertificateTypes))
		for i, t := range model.CertificateTypes {
			types[i] = string(t)
		}
		return fmt.Sprintf("must be one of %s", strings.Join(types, ", "))
	case "certid":
		return "must be 1-128 characters of letters, digits, '.', '_' or '-', starting with a letter or digit"
	case "email":
		return "must be a valid email address"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
