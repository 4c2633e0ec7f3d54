package models

import (
	"time"

	"github.com/google/uuid"
)

// Work is a freelancer's submission against an accepted contract.
// Submissions are append-only; the employer evaluates the latest one.
type Work struct {
	ID           uuid.UUID  `json:"id"`
	ContractID   uuid.UUID  `json:"contract_id"`
	Comment      *string    `json:"comment,omitempty"`
	AttachmentID *uuid.UUID `json:"attachment_id,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
}

type File struct {
	ID       uuid.UUID `json:"id"`
	FileName string    `json:"file_name"`
	MimeType string    `json:"mime_type"`
	Path     string    `json:"-"`
}
