package model

import "time"

// Batch is the header stored for an accepted batch. Items are stored
// separately, one entry per index, so workers never rewrite shared state.
type Batch struct {
	BatchID   string      `json:"batch_id"`
	Total     int         `json:"total"`
	Async     bool        `json:"async"`
	Status    BatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// BatchResult is returned when a batch is submitted.
type BatchResult struct {
	BatchID      string              `json:"batch_id"`
	Total        int                 `json:"total"`
	Status       BatchStatus         `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	Certificates []CertificateRecord `json:"certificates,omitempty"`
}

// BatchProgress is the live view of a batch assembled from its items.
type BatchProgress struct {
	BatchID   string              `json:"batch_id"`
	Status    BatchStatus         `json:"status"`
	Total     int                 `json:"total"`
	Completed int                 `json:"completed"`
	Failed    int                 `json:"failed"`
	Pending   int                 `json:"pending"`
	FailedIDs []string            `json:"failed_ids"`
	CreatedAt time.Time           `json:"created_at"`
	Items     []CertificateRecord `json:"items"`
}

// Done reports whether every item reached a terminal state.
func (p BatchProgress) Done() bool {
	return p.Completed+p.Failed >= p.Total
}

// BatchJob is the unit handed to a background dispatcher.
type BatchJob struct {
	BatchID     string               `json:"batch_id"`
	Items       []CertificateRequest `json:"items"`
	Parallelism int                  `json:"parallelism"`
}

// BatchItemParams identifies one item of a batch job.
type BatchItemParams struct {
	BatchID string             `json:"batch_id"`
	Index   int                `json:"index"`
	Request CertificateRequest `json:"request"`
}

// BatchItemFailure reports an item whose processing was aborted.
type BatchItemFailure struct {
	BatchItemParams
	Error string `json:"error"`
}
