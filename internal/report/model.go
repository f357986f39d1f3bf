package report

import (
	"errors"
	"time"
)

// CPDRow is one line of the CPD report.
type CPDRow struct {
	Employee   string    `json:"employee"`
	Department string    `json:"department"`
	Training   string    `json:"training"`
	Points     int       `json:"points"`
	Date       time.Time `json:"date"`
}

// CPDReport lists CPD accruals with their total.
type CPDReport struct {
	Rows        []CPDRow `json:"rows"`
	TotalPoints int      `json:"total_points"`
}

// AttendanceRow is one line of the attendance report.
type AttendanceRow struct {
	Employee   string    `json:"employee"`
	Department string    `json:"department"`
	Training   string    `json:"training"`
	Status     string    `json:"status"`
	Date       time.Time `json:"date"`
}

// ExpiringRow is a certificate that expires soon or already has.
type ExpiringRow struct {
	CertificateID string    `json:"certificate_id"`
	Employee      string    `json:"employee"`
	Email         string    `json:"email"`
	Department    string    `json:"department"`
	Training      string    `json:"training"`
	ExpiryDate    time.Time `json:"expiry_date"`
	DaysLeft      int       `json:"days_left"`
}

// CPDFilter narrows the CPD report. From and To are inclusive dates.
type CPDFilter struct {
	DepartmentID string
	From         *time.Time
	To           *time.Time
}

// AttendanceFilter narrows the attendance report.
type AttendanceFilter struct {
	TrainingID   string
	DepartmentID string
	Status       string
}

// ExpiryWindowDays is how far ahead the expiry report looks.
const ExpiryWindowDays = 30

var (
	ErrForbidden     = errors.New("permission denied")
	ErrInvalidFilter = errors.New("invalid report filter")
	ErrFormat        = errors.New("unsupported export format")
)
