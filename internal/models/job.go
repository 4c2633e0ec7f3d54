package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Experience levels
const (
	ExperienceLevelEntry        = "entry"
	ExperienceLevelIntermediate = "intermediate"
	ExperienceLevelExpert       = "expert"
)

func IsValidExperienceLevel(l string) bool {
	return l == ExperienceLevelEntry || l == ExperienceLevelIntermediate || l == ExperienceLevelExpert
}

type Job struct {
	ID              uuid.UUID       `json:"id"`
	OwnerID         uuid.UUID       `json:"owner_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	ExperienceLevel string          `json:"experience_level"` // entry / intermediate / expert
	Budget          decimal.Decimal `json:"budget"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Proposal struct {
	ID           uuid.UUID  `json:"id"`
	JobID        uuid.UUID  `json:"job_id"`
	WorkerID     uuid.UUID  `json:"worker_id"`
	Content      string     `json:"content"`
	AttachmentID *uuid.UUID `json:"attachment_id,omitempty"`
	SentAt       time.Time  `json:"sent_at"`
}

// ProposalWithJob embeds Proposal and adds job info for list views.
type ProposalWithJob struct {
	Proposal
	JobTitle *string `json:"job_title,omitempty"`
}
