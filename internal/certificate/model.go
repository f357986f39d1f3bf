package certificate

import (
	"errors"
	"time"
)

// DateLayout is the wire format of certificate dates.
const DateLayout = "2006-01-02"

// Certificate records that a user holds a credential from a training.
type Certificate struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	TrainingID          string    `json:"training_id"`
	IssueDate           time.Time `json:"issue_date"`
	ExpiryDate          time.Time `json:"expiry_date"`
	ReminderSoonSent    bool      `json:"reminder_soon_sent"`
	ReminderExpiredSent bool      `json:"reminder_expired_sent"`
	CreatedAt           time.Time `json:"created_at"`

	TrainingTitle string `json:"training_title,omitempty"`
	TrainerID     string `json:"trainer_id,omitempty"`
	Username      string `json:"username,omitempty"`
	FullName      string `json:"full_name,omitempty"`
	Email         string `json:"email,omitempty"`
}

// Holder is the name used to address the certificate's owner.
func (c Certificate) Holder() string {
	if c.FullName != "" {
		return c.FullName
	}
	return c.Username
}

// Expired reports whether the certificate is past its expiry on today.
func (c Certificate) Expired(today time.Time) bool {
	return DaysUntilExpiry(c, today) < 0
}

// civil truncates t to midnight UTC of its calendar date.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntilExpiry counts calendar days from today to the expiry date.
func DaysUntilExpiry(c Certificate, today time.Time) int {
	return int(civil(c.ExpiryDate).Sub(civil(today)) / (24 * time.Hour))
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// Filter narrows List.
type Filter struct {
	UserID     string
	TrainingID string
}

var (
	ErrNotFound          = errors.New("certificate not found")
	ErrInvalidDate       = errors.New("dates must be formatted YYYY-MM-DD")
	ErrExpiryBeforeIssue = errors.New("expiry date must be after the issue date")
	ErrForbidden         = errors.New("permission denied")
	ErrUserNotFound      = errors.New("certificate holder not found")
)
