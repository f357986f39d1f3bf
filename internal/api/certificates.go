package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stafftracker/internal/auth"
	"stafftracker/internal/certificate"
)

func (s *Server) issueCertificate(c *gin.Context) {
	var in certificate.IssueInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	cert, err := s.Certificates.Issue(c.Request.Context(), auth.ActorFrom(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cert)
}

func (s *Server) updateExpiry(c *gin.Context) {
	var req struct {
		ExpiryDate string `json:"expiry_date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cert, err := s.Certificates.UpdateExpiry(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), req.ExpiryDate)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (s *Server) myCertificates(c *gin.Context) {
	certs, err := s.Certificates.Mine(c.Request.Context(), auth.ActorFrom(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificates": certs})
}

func (s *Server) allCertificates(c *gin.Context) {
	f := certificate.Filter{UserID: c.Query("user_id"), TrainingID: c.Query("training_id")}
	certs, err := s.Certificates.All(c.Request.Context(), auth.ActorFrom(c), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificates": certs})
}

func (s *Server) getCertificate(c *gin.Context) {
	cert, err := s.Certificates.Get(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (s *Server) myCPD(c *gin.Context) {
	sum, err := s.CPD.Summarize(c.Request.Context(), auth.ActorFrom(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
