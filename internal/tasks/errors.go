package tasks

import "errors"

var (
	ErrNotFound           = errors.New("task not found")
	ErrForbidden          = errors.New("task belongs to another user")
	ErrInvalidTransition  = errors.New("task status does not allow this change")
	ErrInvalidInput       = errors.New("invalid task")
	ErrDuplicateProof     = errors.New("this proof was already submitted by another user, please submit your own original work")
	ErrProofRequired      = errors.New("please provide proof of completion")
	ErrProofTooLarge      = errors.New("file size must be less than 10MB")
	ErrInvalidBuddy       = errors.New("buddy must be a different user")
	ErrStorageUnavailable = errors.New("file uploads are not configured")
)
