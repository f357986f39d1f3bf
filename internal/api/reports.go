package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"stafftracker/internal/auth"
	"stafftracker/internal/report"
)

func parseDay(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, report.ErrInvalidFilter
	}
	return &t, nil
}

func cpdFilter(c *gin.Context) (report.CPDFilter, error) {
	f := report.CPDFilter{DepartmentID: c.Query("department_id")}
	var err error
	if f.From, err = parseDay(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseDay(c, "to"); err != nil {
		return f, err
	}
	return f, nil
}

func attendanceFilter(c *gin.Context) report.AttendanceFilter {
	return report.AttendanceFilter{
		TrainingID:   c.Query("training_id"),
		DepartmentID: c.Query("department_id"),
		Status:       c.Query("status"),
	}
}

func (s *Server) cpdReport(c *gin.Context) {
	f, err := cpdFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	rep, err := s.Reports.CPD(c.Request.Context(), auth.ActorFrom(c), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) attendanceReport(c *gin.Context) {
	rows, err := s.Reports.Attendance(c.Request.Context(), auth.ActorFrom(c), attendanceFilter(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (s *Server) expiringReport(c *gin.Context) {
	rows, err := s.Reports.Expiring(c.Request.Context(), auth.ActorFrom(c), c.Query("department_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"window_days": report.ExpiryWindowDays, "certificates": rows})
}

func (s *Server) exportCPD(c *gin.Context) {
	format, err := report.ParseFormat(c.Query("format"))
	if err != nil {
		s.fail(c, err)
		return
	}
	f, err := cpdFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	rep, err := s.Reports.CPD(c.Request.Context(), auth.ActorFrom(c), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.download(c, report.CPDTable(rep), format)
}

func (s *Server) exportAttendance(c *gin.Context) {
	format, err := report.ParseFormat(c.Query("format"))
	if err != nil {
		s.fail(c, err)
		return
	}
	rows, err := s.Reports.Attendance(c.Request.Context(), auth.ActorFrom(c), attendanceFilter(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.download(c, report.AttendanceTable(rows), format)
}

func (s *Server) download(c *gin.Context, t report.Table, format report.Format) {
	buf, filename, err := report.Export(t, format)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
