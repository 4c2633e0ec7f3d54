package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User types
const (
	UserTypeFreelancer = "freelancer"
	UserTypeEmployer   = "employer"
)

func IsValidUserType(t string) bool {
	return t == UserTypeFreelancer || t == UserTypeEmployer
}

type User struct {
	ID           uuid.UUID       `json:"id"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	UserType     string          `json:"user_type"` // freelancer / employer
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActiveAt time.Time       `json:"last_active_at"`
}
