package response

import (
	"encoding/json"
	"net/http"

	"github.com/edvin/certgen/internal/core"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error         string            `json:"error"`
	Kind          string            `json:"kind,omitempty"`
	CertificateID string            `json:"certificate_id,omitempty"`
	Fields        []core.FieldError `json:"fields,omitempty"`
}

// WriteValidationError writes a 400 listing every offending field.
func WriteValidationError(w http.ResponseWriter, err *core.ValidationError) {
	WriteJSON(w, http.StatusBadRequest, ErrorBody{
		Error:  "validation failed",
		Kind:   core.KindValidation,
		Fields: err.Fields,
	})
}
