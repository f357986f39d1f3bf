package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"stafftracker/internal/auth"
	"stafftracker/internal/training"
)

func (s *Server) createTraining(c *gin.Context) {
	var in training.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.Trainings.Create(c.Request.Context(), auth.ActorFrom(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) listTrainings(c *gin.Context) {
	f := training.Filter{
		TrainerID:    c.Query("trainer_id"),
		DepartmentID: c.Query("department_id"),
	}
	if v := c.Query("upcoming"); v != "" {
		upcoming, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, errors.New("upcoming must be a boolean"))
			return
		}
		if upcoming {
			now := time.Now()
			f.StartsAfter = &now
		}
	}
	list, err := s.Trainings.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trainings": list})
}

func (s *Server) getTraining(c *gin.Context) {
	t, err := s.Trainings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTraining(c *gin.Context) {
	var in training.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.Trainings.Update(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTraining(c *gin.Context) {
	if err := s.Trainings.Delete(c.Request.Context(), auth.ActorFrom(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) registerForTraining(c *gin.Context) {
	reg, err := s.Trainings.Register(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (s *Server) listRegistrations(c *gin.Context) {
	f := training.RegistrationFilter{
		TrainingID:   c.Query("training_id"),
		DepartmentID: c.Query("department_id"),
		Status:       training.Status(c.Query("status")),
	}
	regs, err := s.Trainings.ListRegistrations(c.Request.Context(), auth.ActorFrom(c), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": regs})
}

func (s *Server) decideRegistration(c *gin.Context) {
	var req struct {
		Status training.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reg, err := s.Trainings.Decide(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (s *Server) setCompletion(c *gin.Context) {
	var req struct {
		Completed *bool `json:"completed" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reg, err := s.Trainings.SetCompletion(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), *req.Completed)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}
