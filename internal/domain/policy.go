package domain

import "time"

// PolicyDocument is a policy or guideline text indexed for retrieval
type PolicyDocument struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}
