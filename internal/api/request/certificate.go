package request

import "github.com/edvin/certgen/internal/model"

// Batch is the envelope of a batch generation request. Items are validated
// one by one during processing so a bad item never rejects its siblings.
type Batch struct {
	Certificates    []model.CertificateRequest `json:"certificates" validate:"required,min=1,max=100"`
	AsyncProcessing *bool                      `json:"async_processing,omitempty"`
}

// Async reports whether the batch runs in the background. It defaults to true.
func (b Batch) Async() bool {
	return b.AsyncProcessing == nil || *b.AsyncProcessing
}
