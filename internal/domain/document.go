package domain

import "time"

// Document validation statuses
const (
	DocumentStatusPendingReview = "pending_review"
	DocumentStatusValid         = "valid"
	DocumentStatusInvalid       = "invalid"
	DocumentStatusNeedsReview   = "needs_review"
	DocumentStatusError         = "error"
)

// DocumentTypeOther is used when no checklist item matches an upload
const DocumentTypeOther = "other"

// DocumentValidation is the validation record attached to a document
type DocumentValidation struct {
	Status      string     `json:"status"`
	Confidence  float64    `json:"confidence"`
	Issues      []string   `json:"issues"`
	Suggestions []string   `json:"suggestions"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
}

// Document is a file attached to a claim
type Document struct {
	ID           string             `json:"id"`
	ClaimID      string             `json:"claim_id"`
	FileName     string             `json:"file_name"`
	StorageRef   string             `json:"storage_ref"`
	MimeType     string             `json:"mime_type,omitempty"`
	SizeBytes    int64              `json:"size_bytes"`
	DocumentType string             `json:"document_type"`
	Validation   DocumentValidation `json:"validation"`
	UploadedAt   time.Time          `json:"uploaded_at"`
}

// Upload is an incoming file, already read from the transport
type Upload struct {
	FileName     string
	MimeType     string
	DocumentType string
	Content      []byte
}

// ValidationReport is the response for the validation endpoint
type ValidationReport struct {
	ClaimID    string            `json:"claim_id"`
	Validation *ValidationStatus `json:"validation_status"`
	Documents  []*Document       `json:"documents"`
}

// UploadResult is the response for a document upload
type UploadResult struct {
	Documents  []*Document       `json:"documents"`
	Validation *ValidationStatus `json:"validation_status"`
	NextStep   string            `json:"next_step,omitempty"`
}
