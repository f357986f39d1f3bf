package training

import (
	"time"
)

// Phase is where a training sits relative to its schedule.
type Phase string

const (
	PhaseOpen      Phase = "Open"
	PhaseOngoing   Phase = "Ongoing"
	PhaseCompleted Phase = "Completed"
)

// Training is a scheduled session.
type Training struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	StartsAt      time.Time `json:"starts_at"`
	DurationHours float64   `json:"duration_hours"`
	Location      string    `json:"location"`
	TrainerID     string    `json:"trainer_id"`
	DepartmentID  *string   `json:"department_id,omitempty"`
	CPDPoints     int       `json:"cpd_points"`
	CreatedAt     time.Time `json:"created_at"`
}

// EndsAt is the start plus the duration.
func (t Training) EndsAt() time.Time {
	return t.StartsAt.Add(time.Duration(t.DurationHours * float64(time.Hour)))
}

// PhaseAt classifies the training at the given instant.
func (t Training) PhaseAt(now time.Time) Phase {
	switch {
	case now.Before(t.StartsAt):
		return PhaseOpen
	case now.Before(t.EndsAt()):
		return PhaseOngoing
	default:
		return PhaseCompleted
	}
}

// Ended reports whether the training is over at now.
func (t Training) Ended(now time.Time) bool {
	return !now.Before(t.EndsAt())
}

func (t Training) scheduleDiffers(o Training) bool {
	return !t.StartsAt.Equal(o.StartsAt) || t.DurationHours != o.DurationHours
}

// Status is the approval state of a registration.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Completion records whether the employee finished the training.
type Completion string

const (
	NotCompleted Completion = "Not Completed"
	Completed    Completion = "Completed"
)

// Registration is an employee's request to attend a training.
type Registration struct {
	ID          string     `json:"id"`
	TrainingID  string     `json:"training_id"`
	EmployeeID  string     `json:"employee_id"`
	Status      Status     `json:"status"`
	Completion  Completion `json:"completion"`
	RequestedAt time.Time  `json:"requested_at"`
	DecidedBy   *string    `json:"decided_by,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

// RegistrationView joins a registration with names for listings.
type RegistrationView struct {
	Registration
	TrainingTitle string `json:"training_title"`
	EmployeeName  string `json:"employee_name"`
	DepartmentID  string `json:"department_id,omitempty"`
}

// Filter narrows ListTrainings.
type Filter struct {
	TrainerID    string
	DepartmentID string
	StartsAfter  *time.Time
	EndedBefore  *time.Time
}

// RegistrationFilter narrows ListRegistrations.
type RegistrationFilter struct {
	TrainingID   string
	EmployeeID   string
	DepartmentID string
	TrainerID    string
	Status       Status
}
