package training

import "errors"

var (
	ErrNotFound             = errors.New("training not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrAlreadyRegistered    = errors.New("already registered for this training")
	ErrValidation           = errors.New("validation failed")
	ErrForbidden            = errors.New("permission denied")
	ErrTrainingClosed       = errors.New("training has already ended")
	ErrInvalidDecision      = errors.New("decision must be Approved or Rejected")
	ErrNotEligible          = errors.New("only approved employees can register")
	ErrInvalidTrainer       = errors.New("trainer must be an approved Trainer account")
)
