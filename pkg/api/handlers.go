package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mathih13/botharness/pkg/report"
)

// StartRunRequest starts a test run for a route path.
type StartRunRequest struct {
	Route string `json:"route" binding:"required"`
}

// StartSuiteRequest starts a suite run for a suite file path.
type StartSuiteRequest struct {
	Suite    string `json:"suite" binding:"required"`
	Parallel bool   `json:"parallel"`
}

func (s *Server) handleStartRun(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID, err := s.runs.LaunchTestRun(req.Route)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, _ := s.runs.GetRun(runID)
	c.JSON(http.StatusAccepted, view)
}

func (s *Server) handleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active":    s.runs.ActiveRuns(),
		"completed": s.runs.CompletedRuns(),
	})
}

func (s *Server) handleGetRun(c *gin.Context) {
	view, ok := s.runs.GetRun(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "test run not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleRunReport(c *gin.Context) {
	view, ok := s.runs.GetRun(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "test run not found"})
		return
	}
	if c.DefaultQuery("format", "text") == "json" {
		body, err := report.RunJSON(view)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", body)
		return
	}
	c.String(http.StatusOK, report.RunText(view))
}

func (s *Server) handleCancelRun(c *gin.Context) {
	if !s.runs.Stop(c.Param("id")) {
		c.JSON(http.StatusConflict, gin.H{"error": "test run is not active"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (s *Server) handleStartSuite(c *gin.Context) {
	var req StartSuiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	suiteID, err := s.suites.LaunchSuiteRun(req.Suite, req.Parallel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, _ := s.suites.GetSuiteRun(suiteID)
	c.JSON(http.StatusAccepted, view)
}

func (s *Server) handleListSuites(c *gin.Context) {
	active, completed := s.suites.SuiteRuns()
	c.JSON(http.StatusOK, gin.H{"active": active, "completed": completed})
}

func (s *Server) handleGetSuite(c *gin.Context) {
	view, ok := s.suites.GetSuiteRun(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "suite run not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleCancelSuite(c *gin.Context) {
	if !s.suites.Stop(c.Param("id")) {
		c.JSON(http.StatusConflict, gin.H{"error": "suite run is not active"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (s *Server) handleSuiteReport(c *gin.Context) {
	view, ok := s.suites.GetSuiteRun(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "suite run not found"})
		return
	}
	if c.DefaultQuery("format", "text") == "json" {
		body, err := report.SuiteJSON(view)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", body)
		return
	}
	c.String(http.StatusOK, report.SuiteText(view))
}
