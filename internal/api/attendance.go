package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"stafftracker/internal/auth"
)

func (s *Server) generateToken(c *gin.Context) {
	tok, err := s.Attendance.GenerateCheckinToken(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tok)
}

// redeemToken is unauthenticated: the scanning employee proves identity
// with their credentials in the body.
func (s *Server) redeemToken(c *gin.Context) {
	var req struct {
		AttendanceID string `json:"attendance_id" binding:"required"`
		Username     string `json:"username" binding:"required"`
		Password     string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.Attendance.RedeemToken(c.Request.Context(), req.AttendanceID, req.Username, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Attendance marked successfully",
		"attendance": res.Record,
		"username":   res.Username,
		"cpd_points": res.CPDPoints,
	})
}

func (s *Server) manualCheckIn(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.Attendance.ManualCheckIn(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) trainingAttendance(c *gin.Context) {
	sheet, err := s.Attendance.TrainingAttendance(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sheet)
}

func (s *Server) sweep(c *gin.Context) {
	force := c.Query("force") == "true"
	marked, err := s.Attendance.Sweep(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"training_id": c.Param("id"), "marked_absent": marked})
}
