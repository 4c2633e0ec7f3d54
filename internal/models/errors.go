package models

import "errors"

// Settlement error taxonomy. Guard failures are business decisions and are
// returned as-is, never retried. Only ErrTransientStore is retried, by the
// settlement layer, before being surfaced.
var (
	ErrUnauthorized      = errors.New("principal is not allowed to perform this action")
	ErrInvalidTransition = errors.New("contract status does not permit this transition")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrDuplicateContract = errors.New("an open contract already exists for this job and worker")
	ErrDuplicateEscrow   = errors.New("escrow already funded for this contract")
	ErrAlreadyDisposed   = errors.New("escrow already released or refunded")
	ErrDuplicateProposal = errors.New("a proposal already exists for this job and worker")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrTransientStore    = errors.New("transient store error")
)
