package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stafftracker/internal/assessment"
	"stafftracker/internal/attendance"
	"stafftracker/internal/certificate"
	"stafftracker/internal/evaluation"
	"stafftracker/internal/identity"
	"stafftracker/internal/report"
	"stafftracker/internal/training"
)

var errorStatus = []struct {
	err    error
	status int
}{
	// validation
	{identity.ErrValidation, http.StatusBadRequest},
	{identity.ErrInvalidRole, http.StatusBadRequest},
	{identity.ErrDepartmentRequired, http.StatusBadRequest},
	{identity.ErrDepartmentForbidden, http.StatusBadRequest},
	{identity.ErrNotHOD, http.StatusBadRequest},
	{training.ErrValidation, http.StatusBadRequest},
	{training.ErrInvalidDecision, http.StatusBadRequest},
	{training.ErrInvalidTrainer, http.StatusBadRequest},
	{attendance.ErrValidation, http.StatusBadRequest},
	{attendance.ErrTokenExpired, http.StatusBadRequest},
	{attendance.ErrTokenInvalid, http.StatusBadRequest},
	{assessment.ErrValidation, http.StatusBadRequest},
	{assessment.ErrInvalidPhase, http.StatusBadRequest},
	{assessment.ErrNoQuestions, http.StatusBadRequest},
	{certificate.ErrInvalidDate, http.StatusBadRequest},
	{certificate.ErrExpiryBeforeIssue, http.StatusBadRequest},
	{certificate.ErrUserNotFound, http.StatusBadRequest},
	{evaluation.ErrValidation, http.StatusBadRequest},
	{report.ErrInvalidFilter, http.StatusBadRequest},
	{report.ErrFormat, http.StatusBadRequest},

	// authentication
	{identity.ErrInvalidCredentials, http.StatusUnauthorized},
	{identity.ErrRefreshInvalid, http.StatusUnauthorized},
	{attendance.ErrInvalidCredentials, http.StatusUnauthorized},

	// authorization
	{identity.ErrNotApproved, http.StatusForbidden},
	{training.ErrForbidden, http.StatusForbidden},
	{training.ErrNotEligible, http.StatusForbidden},
	{attendance.ErrForbidden, http.StatusForbidden},
	{attendance.ErrNotEmployee, http.StatusForbidden},
	{attendance.ErrNotApproved, http.StatusForbidden},
	{attendance.ErrNotRegistered, http.StatusForbidden},
	{attendance.ErrRegistrationNotApproved, http.StatusForbidden},
	{assessment.ErrForbidden, http.StatusForbidden},
	{certificate.ErrForbidden, http.StatusForbidden},
	{evaluation.ErrForbidden, http.StatusForbidden},
	{evaluation.ErrNotAttendee, http.StatusForbidden},
	{report.ErrForbidden, http.StatusForbidden},

	// not found
	{identity.ErrNotFound, http.StatusNotFound},
	{identity.ErrDepartmentNotFound, http.StatusNotFound},
	{training.ErrNotFound, http.StatusNotFound},
	{training.ErrRegistrationNotFound, http.StatusNotFound},
	{assessment.ErrQuestionNotFound, http.StatusNotFound},
	{certificate.ErrNotFound, http.StatusNotFound},

	// state
	{identity.ErrUsernameTaken, http.StatusConflict},
	{identity.ErrDepartmentExists, http.StatusConflict},
	{training.ErrAlreadyRegistered, http.StatusConflict},
	{training.ErrTrainingClosed, http.StatusConflict},
	{attendance.ErrTokenUsed, http.StatusConflict},
	{attendance.ErrAlreadyCheckedIn, http.StatusConflict},
	{attendance.ErrTrainingNotEnded, http.StatusConflict},
	{assessment.ErrAlreadySubmitted, http.StatusConflict},
	{assessment.ErrNotAvailable, http.StatusConflict},
	{evaluation.ErrAlreadyEvaluated, http.StatusConflict},
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
