package dto

import "time"

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	UserType  string `json:"user_type"` // freelancer / employer
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateJobRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	ExperienceLevel string `json:"experience_level"` // entry / intermediate / expert
	Budget          string `json:"budget"`
}

type SendProposalRequest struct {
	JobID        string  `json:"job_id"`
	Content      string  `json:"content"`
	AttachmentID *string `json:"attachment_id,omitempty"`
}

type CreateContractRequest struct {
	JobID    string    `json:"job_id"`
	WorkerID string    `json:"worker_id"`
	Budget   string    `json:"budget"`
	Deadline time.Time `json:"deadline"`
}

type RespondContractRequest struct {
	Decision string `json:"decision"` // accept / reject
}

type SubmitWorkRequest struct {
	Comment      *string `json:"comment,omitempty"`
	AttachmentID *string `json:"attachment_id,omitempty"`
}

type InitiateDepositRequest struct {
	Amount string `json:"amount"`
}
