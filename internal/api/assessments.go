package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stafftracker/internal/assessment"
	"stafftracker/internal/auth"
	"stafftracker/internal/evaluation"
)

func (s *Server) listQuestions(c *gin.Context) {
	phase, err := assessment.ParsePhase(c.DefaultQuery("phase", string(assessment.PhasePre)))
	if err != nil {
		s.fail(c, err)
		return
	}
	qs, err := s.Assessments.ListQuestions(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), phase)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phase": phase, "questions": qs})
}

func (s *Server) addQuestion(c *gin.Context) {
	var in assessment.QuestionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	q, err := s.Assessments.AddQuestion(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (s *Server) updateQuestion(c *gin.Context) {
	var in assessment.QuestionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	q, err := s.Assessments.UpdateQuestion(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) deleteQuestion(c *gin.Context) {
	if err := s.Assessments.DeleteQuestion(c.Request.Context(), auth.ActorFrom(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) submitAssessment(c *gin.Context) {
	phase, err := assessment.ParsePhase(c.Param("phase"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var in assessment.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	sub, err := s.Assessments.Submit(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), phase, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) mySubmissions(c *gin.Context) {
	subs, err := s.Assessments.MySubmissions(c.Request.Context(), auth.ActorFrom(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

func (s *Server) submitEvaluation(c *gin.Context) {
	var in evaluation.Evaluation
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	e, err := s.Evaluations.Submit(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"evaluation": e, "average": e.Average()})
}

func (s *Server) listEvaluations(c *gin.Context) {
	evals, err := s.Evaluations.List(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluations": evals})
}

func (s *Server) evaluationSummary(c *gin.Context) {
	sum, err := s.Evaluations.Summary(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
