package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arogyasahayak/sahayak/internal/assistant"
	"github.com/arogyasahayak/sahayak/internal/persona"
	"github.com/arogyasahayak/sahayak/internal/providers"
)

const historyWindow = 20

type chatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Persona   string `json:"persona"`
	Language  string `json:"language"`
}

type completionReply struct {
	Reply  string `json:"reply"`
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}

// completeCtx runs one completion under the server's overall call
// timeout. The error is non-nil only for cancellation/deadline.
func (s *Server) completeCtx(ctx context.Context, req assistant.Request) (assistant.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.client.Complete(ctx, req)
}

func (s *Server) complete(c *gin.Context, req assistant.Request) (assistant.Result, bool) {
	res, err := s.completeCtx(c.Request.Context(), req)
	if err != nil {
		// Client went away or the overall deadline passed; there is
		// nobody left to answer.
		s.logger.Warn("completion aborted", "error", err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
		return assistant.Result{}, false
	}
	return res, true
}

func reply(c *gin.Context, res assistant.Result) {
	c.JSON(http.StatusOK, completionReply{
		Reply:  res.Text(),
		Status: res.Status.String(),
		Model:  res.Model,
	})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := userID(c) + ":" + req.SessionID

	msgs, err := s.hist.Recent(c.Request.Context(), sessionID, historyWindow)
	if err != nil {
		s.logger.Error("loading history", "session", sessionID, "error", err)
		msgs = nil
	}
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: req.Message})

	res, ok := s.complete(c, assistant.Request{
		Messages: msgs,
		Persona:  persona.Parse(req.Persona),
		Language: req.Language,
	})
	if !ok {
		return
	}

	if err := s.hist.Append(c.Request.Context(), sessionID, providers.RoleUser, req.Message); err != nil {
		s.logger.Error("saving user turn", "session", sessionID, "error", err)
	}
	if err := s.hist.Append(c.Request.Context(), sessionID, providers.RoleAssistant, res.Text()); err != nil {
		s.logger.Error("saving assistant turn", "session", sessionID, "error", err)
	}

	reply(c, res)
}

type symptomRequest struct {
	Symptoms string `json:"symptoms" binding:"required"`
	Duration string `json:"duration"`
	Severity string `json:"severity"`
	Age      int    `json:"age"`
	Language string `json:"language"`
}

func (s *Server) handleSymptomCheck(c *gin.Context) {
	var req symptomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Symptoms: %s\n", req.Symptoms)
	if req.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", req.Duration)
	}
	if req.Severity != "" {
		fmt.Fprintf(&b, "Severity: %s\n", req.Severity)
	}
	if req.Age > 0 {
		fmt.Fprintf(&b, "Age: %d\n", req.Age)
	}

	res, ok := s.complete(c, assistant.Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: b.String()}},
		Persona:  persona.SymptomTriage,
		Language: req.Language,
	})
	if !ok {
		return
	}
	reply(c, res)
}

type dictionaryRequest struct {
	Term     string `json:"term" binding:"required"`
	Language string `json:"language"`
}

func (s *Server) handleDictionary(c *gin.Context) {
	var req dictionaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prompt := fmt.Sprintf("Define the medical term %q in simple language a patient can understand, with one example.", req.Term)
	res, ok := s.complete(c, assistant.Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: prompt}},
		Persona:  persona.General,
		Language: req.Language,
	})
	if !ok {
		return
	}
	reply(c, res)
}

func (s *Server) handleHealthTip(c *gin.Context) {
	lang := c.DefaultQuery("language", "en")
	now := time.Now()
	key := "tip:" + now.Format("2006-01-02") + ":" + lang

	if tip, hit, err := s.tips.Get(c.Request.Context(), key); err == nil && hit {
		c.JSON(http.StatusOK, gin.H{"tip": tip, "cached": true})
		return
	} else if err != nil {
		s.logger.Error("tip cache read", "error", err)
	}

	res, ok := s.complete(c, assistant.Request{
		Messages: []providers.Message{{
			Role:    providers.RoleUser,
			Content: "Give one short, practical health tip for today. Two sentences at most.",
		}},
		Persona:  persona.General,
		Language: lang,
	})
	if !ok {
		return
	}

	if res.OK() {
		// Valid until local midnight, when the date key changes anyway.
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
		if err := s.tips.Put(c.Request.Context(), key, res.Content, time.Until(midnight)); err != nil {
			s.logger.Error("tip cache write", "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"tip": res.Text(), "cached": false})
}

type mockTestRequest struct {
	Exam     string `json:"exam" binding:"required"`
	Subject  string `json:"subject" binding:"required"`
	Topic    string `json:"topic"`
	Count    int    `json:"count"`
	Language string `json:"language"`
}

func (s *Server) handleMockTest(c *gin.Context) {
	var req mockTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Count <= 0 {
		req.Count = 10
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate a mock test of %d questions for the %s exam, subject %s.", req.Count, req.Exam, req.Subject)
	if req.Topic != "" {
		fmt.Fprintf(&b, " Focus on the topic: %s.", req.Topic)
	}

	res, ok := s.complete(c, assistant.Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: b.String()}},
		Persona:  persona.ExamTutor,
		Language: req.Language,
	})
	if !ok {
		return
	}
	reply(c, res)
}

type studyPlanRequest struct {
	Exam        string   `json:"exam" binding:"required"`
	Days        int      `json:"days" binding:"required"`
	HoursPerDay int      `json:"hours_per_day"`
	WeakAreas   []string `json:"weak_areas"`
	Language    string   `json:"language"`
}

func (s *Server) handleStudyPlan(c *gin.Context) {
	var req studyPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionCtx := map[string]any{
		"exam":          req.Exam,
		"days_left":     req.Days,
		"hours_per_day": req.HoursPerDay,
		"weak_areas":    req.WeakAreas,
	}

	res, ok := s.complete(c, assistant.Request{
		Messages: []providers.Message{{
			Role:    providers.RoleUser,
			Content: "Prepare my study plan using the session context.",
		}},
		Persona:        persona.GuidedStudy,
		Language:       req.Language,
		SessionContext: sessionCtx,
	})
	if !ok {
		return
	}
	reply(c, res)
}

type socraticRequest struct {
	SessionID string         `json:"session_id" binding:"required"`
	Message   string         `json:"message" binding:"required"`
	Context   map[string]any `json:"context"`
	Language  string         `json:"language"`
}

func (s *Server) handleSocratic(c *gin.Context) {
	var req socraticRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := userID(c) + ":socratic:" + req.SessionID

	msgs, err := s.hist.Recent(c.Request.Context(), sessionID, historyWindow)
	if err != nil {
		s.logger.Error("loading history", "session", sessionID, "error", err)
		msgs = nil
	}
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: req.Message})

	res, ok := s.complete(c, assistant.Request{
		Messages:       msgs,
		Persona:        persona.SocraticStudy,
		Language:       req.Language,
		SessionContext: req.Context,
	})
	if !ok {
		return
	}

	if err := s.hist.Append(c.Request.Context(), sessionID, providers.RoleUser, req.Message); err != nil {
		s.logger.Error("saving user turn", "session", sessionID, "error", err)
	}
	if err := s.hist.Append(c.Request.Context(), sessionID, providers.RoleAssistant, res.Text()); err != nil {
		s.logger.Error("saving assistant turn", "session", sessionID, "error", err)
	}

	reply(c, res)
}

type createReminderRequest struct {
	Medicine string `json:"medicine" binding:"required"`
	Dosage   string `json:"dosage"`
	Schedule string `json:"schedule" binding:"required"`
}

func (s *Server) handleCreateReminder(c *gin.Context) {
	var req createReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.reminders.Create(c.Request.Context(), userID(c), req.Medicine, req.Dosage, req.Schedule)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleListReminders(c *gin.Context) {
	reminders, err := s.reminders.List(c.Request.Context(), userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing reminders failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": reminders})
}

func (s *Server) reminderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reminder id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleDeleteReminder(c *gin.Context) {
	id, ok := s.reminderID(c)
	if !ok {
		return
	}
	if err := s.reminders.Delete(c.Request.Context(), userID(c), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handlePauseReminder(c *gin.Context) {
	id, ok := s.reminderID(c)
	if !ok {
		return
	}
	if err := s.reminders.Pause(c.Request.Context(), userID(c), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": id})
}

func (s *Server) handleResumeReminder(c *gin.Context) {
	id, ok := s.reminderID(c)
	if !ok {
		return
	}
	if err := s.reminders.Resume(c.Request.Context(), userID(c), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumed": id})
}
