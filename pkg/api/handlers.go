// Package api implements the HTTP Surface (spec §4.12): article and
// fragment submission, job status lookup, and a health check. Grounded
// on the teacher's gin-based pkg/api/handlers.go — the teacher's later
// echo-based handlers (server.go, handler_*.go) depend on
// github.com/labstack/echo/v5, which this module's go.mod does not
// carry (see DESIGN.md), so this package follows the gin shape instead.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/newsgraph/extractor/pkg/controller"
	"github.com/newsgraph/extractor/pkg/directory"
	"github.com/newsgraph/extractor/pkg/extraction"
	"github.com/newsgraph/extractor/pkg/jobtracker"
	"github.com/newsgraph/extractor/pkg/llmclient"
)

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	controller *controller.Controller
	jobs       *jobtracker.Tracker
	llm        *llmclient.Client
	directory  *directory.Client
}

// NewServer creates a new API server wired to ctrl for processing,
// jobs for status lookups, and llm/dir for the health check's upstream
// reachability probes.
func NewServer(ctrl *controller.Controller, jobs *jobtracker.Tracker, llm *llmclient.Client, dir *directory.Client) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), securityHeaders())

	s := &Server{engine: engine, controller: ctrl, jobs: jobs, llm: llm, directory: dir}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)
	s.engine.POST("/process_article", s.processArticleHandler)
	s.engine.POST("/process_fragment", s.processFragmentHandler)
	s.engine.GET("/status/:job_id", s.statusHandler)
}

// Start serves the API on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// processArticleHandler handles POST /process_article (spec §4.12, §6).
func (s *Server) processArticleHandler(c *gin.Context) {
	var article extraction.Article
	if err := c.ShouldBindJSON(&article); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	jobID, result, err := s.controller.ProcessArticle(c.Request.Context(), &article)
	if err != nil {
		writeError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusAccepted, acceptedResponse{Success: true, JobID: jobID, Status: "processing"})
		return
	}
	c.JSON(http.StatusOK, newSuccessResponse(result.RequestID, result))
}

// processFragmentHandler handles POST /process_fragment (spec §4.12, §6).
func (s *Server) processFragmentHandler(c *gin.Context) {
	var fragment extraction.Fragment
	if err := c.ShouldBindJSON(&fragment); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	jobID, result, err := s.controller.ProcessFragment(c.Request.Context(), &fragment, time.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusAccepted, acceptedResponse{Success: true, JobID: jobID, Status: "processing"})
		return
	}
	c.JSON(http.StatusOK, newSuccessResponse(result.RequestID, result))
}

// statusHandler handles GET /status/{job_id} (spec §4.12, §6).
func (s *Server) statusHandler(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := s.jobs.Get(jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		JobID:     job.ID,
		State:     string(job.State),
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
		Result:    job.Result,
		Error:     job.Error,
	})
}
