package model

// RecordStatus is the lifecycle state of a certificate record.
type RecordStatus string

// Certificate record status constants.
const (
	StatusPending    RecordStatus = "PENDING"
	StatusGenerating RecordStatus = "GENERATING"
	StatusCompleted  RecordStatus = "COMPLETED"
	StatusFailed     RecordStatus = "FAILED"
)

// Terminal reports whether the status is final for a generation attempt.
func (s RecordStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BatchStatus is the aggregate state of a batch.
type BatchStatus string

// Batch status constants.
const (
	BatchQueued         BatchStatus = "queued"
	BatchProcessing     BatchStatus = "processing"
	BatchCompleted      BatchStatus = "completed"
	BatchPartialFailure BatchStatus = "partial_failure"
	BatchFailed         BatchStatus = "failed"
)
