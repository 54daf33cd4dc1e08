package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-diary-go/internal/auth"
	"voice-diary-go/internal/pipeline"
	"voice-diary-go/internal/recorder"
	"voice-diary-go/internal/report"
	"voice-diary-go/internal/store"
	"voice-diary-go/internal/types"
)

type saveRequest struct {
	Text string `json:"text"`
}

type startRequest struct {
	PermissionGranted bool `json:"permission_granted"`
}

func statusJSON(st pipeline.Status) gin.H {
	out := gin.H{"state": st.State.String()}
	if st.Err != nil {
		out["error"] = st.Err.Error()
		out["notice"] = st.Notice
	}
	return out
}

// dateParam validates the :date path parameter and aborts with 400 on failure.
func dateParam(c *gin.Context) (string, bool) {
	date := c.Param("date")
	if _, err := types.ParseDate(date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return date, true
}

// monthQuery reads ?month=YYYY-MM, defaulting to the current month.
func (s *Server) monthQuery(c *gin.Context) (string, bool) {
	month := c.Query("month")
	if month == "" {
		return s.now().Format(types.MonthLayout), true
	}
	if _, err := types.ParseMonth(month); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return month, true
}

func (s *Server) getDiary(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	rec, err := s.store.Fetch(c.Request.Context(), auth.UserID(c), date)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "diary not found"})
		return
	}
	if err != nil {
		requestLog(c, s.log).WithError(err).Error("fetch diary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load diary"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) saveDiary(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	rec, sess, err := s.registry.ManualSave(c.Request.Context(), auth.UserID(c), date, req.Text)
	s.runResult(c, rec, sess, err)
}

func (s *Server) deleteDiary(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	n, err := s.store.DeleteAll(c.Request.Context(), auth.UserID(c), date)
	if err != nil {
		requestLog(c, s.log).WithError(err).Error("delete diary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete diary"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) listDiaries(c *gin.Context) {
	month, ok := s.monthQuery(c)
	if !ok {
		return
	}
	records, err := s.store.ListByUser(c.Request.Context(), auth.UserID(c), month)
	if err != nil {
		requestLog(c, s.log).WithError(err).Error("list diaries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list diaries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"month": month, "diaries": records})
}

func (s *Server) pastDiaries(c *gin.Context) {
	today := s.now()
	if q := c.Query("today"); q != "" {
		t, err := types.ParseDate(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		today = t
	}
	records, err := s.store.ListByUser(c.Request.Context(), auth.UserID(c), "")
	if err != nil {
		requestLog(c, s.log).WithError(err).Error("list diaries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load past diaries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": report.PastEntries(records, today)})
}

func (s *Server) startRecording(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	sess, err := s.registry.Begin(c.Request.Context(), auth.UserID(c), date, req.PermissionGranted)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, statusJSON(sess.Status()))
	case errors.Is(err, recorder.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, statusJSON(sess.Status()))
	case errors.Is(err, pipeline.ErrSessionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "a recording for this date is already in progress"})
	default:
		requestLog(c, s.log).WithError(err).Error("start recording")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start recording", "notice": pipeline.NoticeFailed})
	}
}

func (s *Server) recordingStatus(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	sess, found := s.registry.Get(auth.UserID(c), date)
	if !found {
		c.JSON(http.StatusOK, statusJSON(pipeline.Status{State: pipeline.Idle}))
		return
	}
	c.JSON(http.StatusOK, statusJSON(sess.Status()))
}

func (s *Server) appendAudio(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, MaxAudioBytes)
	n, err := s.registry.Append(auth.UserID(c), date, body)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": n})
	case errors.Is(err, pipeline.ErrNoSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "no recording in progress"})
	case errors.Is(err, recorder.ErrNotRecording):
		c.JSON(http.StatusConflict, gin.H{"error": "recording is not accepting audio"})
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("audio exceeds %d bytes", MaxAudioBytes)})
	default:
		requestLog(c, s.log).WithError(err).Error("append audio")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store audio"})
	}
}

func (s *Server) stopRecording(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	rec, sess, err := s.registry.Finish(c.Request.Context(), auth.UserID(c), date)
	if errors.Is(err, pipeline.ErrNoSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recording in progress"})
		return
	}
	s.runResult(c, rec, sess, err)
}

func (s *Server) cancelRecording(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	if err := s.registry.Cancel(c.Request.Context(), auth.UserID(c), date); errors.Is(err, pipeline.ErrNoSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recording in progress"})
		return
	}
	c.Status(http.StatusNoContent)
}

// runResult renders the outcome of a pipeline run. A failed save still
// returns the draft so the client can retry with a manual save.
func (s *Server) runResult(c *gin.Context, rec types.DiaryRecord, sess *pipeline.Session, err error) {
	var status gin.H
	if sess != nil {
		status = statusJSON(sess.Status())
	}
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"diary": rec, "status": status})
	case errors.Is(err, pipeline.ErrSessionBusy), errors.Is(err, pipeline.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "a recording for this date is in progress"})
	case errors.Is(err, store.ErrPersistenceFailed):
		requestLog(c, s.log).WithError(err).Error("diary save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save diary", "notice": pipeline.NoticeSaveFailed, "draft": rec, "status": status})
	default:
		requestLog(c, s.log).WithError(err).Error("pipeline failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process diary", "notice": pipeline.NoticeFailed, "status": status})
	}
}

func (s *Server) keywordRanking(c *gin.Context) {
	month, ok := s.monthQuery(c)
	if !ok {
		return
	}
	records, err := s.store.ListByUser(c.Request.Context(), auth.UserID(c), month)
	if err != nil {
		requestLog(c, s.log).WithError(err).Error("list diaries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ranking"})
		return
	}
	c.JSON(http.StatusOK, report.KeywordRanking(records, month))
}

func (s *Server) exportRanking(c *gin.Context) {
	month, ok := s.monthQuery(c)
	if !ok {
		return
	}
	records, err := s.store.ListByUser(c.Request.Context(), auth.UserID(c), month)
	if err != nil {
		requestLog(c, s.log).WithError(err).Error("list diaries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export"})
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, records, report.KeywordRanking(records, month)); err != nil {
		requestLog(c, s.log).WithError(err).Error("write workbook")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="diary-%s.xlsx"`, month))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
