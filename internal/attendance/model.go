package attendance

import (
	"errors"
	"time"
)

// Status is the attendance outcome for a user.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
)

// Record is an attendance row. A QR placeholder has no user until redeemed;
// its id is the check-in token.
type Record struct {
	ID             string     `json:"id"`
	TrainingID     string     `json:"training_id"`
	UserID         *string    `json:"user_id,omitempty"`
	Status         Status     `json:"status"`
	CheckInTime    *time.Time `json:"check_in_time,omitempty"`
	Date           time.Time  `json:"date"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Redeemed reports whether the row is bound to a user.
func (r Record) Redeemed() bool {
	return r.UserID != nil && *r.UserID != ""
}

// Row is a user-bound attendance record with user details.
type Row struct {
	Record
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Sheet is the attendance of one training.
type Sheet struct {
	TrainingID string `json:"training_id"`
	Rows       []Row  `json:"attendance"`
	Total      int    `json:"total"`
	Present    int    `json:"present"`
	Absent     int    `json:"absent"`
}

// NewSheet counts rows by status.
func NewSheet(trainingID string, rows []Row) Sheet {
	s := Sheet{TrainingID: trainingID, Rows: rows}
	if s.Rows == nil {
		s.Rows = []Row{}
	}
	for _, r := range rows {
		s.Total++
		if r.Status == StatusPresent {
			s.Present++
		} else {
			s.Absent++
		}
	}
	return s
}

// Token is an issued QR check-in token.
type Token struct {
	AttendanceID  string    `json:"attendance_id"`
	TrainingID    string    `json:"training_id"`
	TrainingTitle string    `json:"training_title"`
	Payload       string    `json:"qr_data"`
	Image         string    `json:"qr_image"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// CheckIn is the result of a successful check-in.
type CheckIn struct {
	Record    Record `json:"attendance"`
	Username  string `json:"username"`
	CPDPoints int    `json:"cpd_points"`
}

var (
	ErrTokenInvalid            = errors.New("QR code invalid or expired")
	ErrTokenExpired            = errors.New("QR code has expired")
	ErrTokenUsed               = errors.New("this QR code has already been used")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrNotEmployee             = errors.New("only employees can check in")
	ErrNotApproved             = errors.New("your account is not approved")
	ErrNotRegistered           = errors.New("you are not registered for this training")
	ErrRegistrationNotApproved = errors.New("your registration is pending approval")
	ErrAlreadyCheckedIn        = errors.New("you have already checked in")
	ErrTrainingNotEnded        = errors.New("training has not ended yet")
	ErrForbidden               = errors.New("permission denied")
	ErrValidation              = errors.New("validation failed")
)
