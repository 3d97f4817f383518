package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/newsgraph/extractor/pkg/version"
)

// healthHandler handles GET /health (spec §4.12, §6). Checks upstream
// reachability of the LLM provider and the directory service; status is
// "ok" when both are reachable, "degraded" otherwise. Never blocks on a
// slow upstream beyond a short per-check timeout.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	upstreams := map[string]string{}
	status := "ok"

	if err := s.llm.Ping(reqCtx); err != nil {
		status = "degraded"
		upstreams["llm"] = "unreachable"
	} else {
		upstreams["llm"] = "ok"
	}

	if err := s.directory.Ping(reqCtx); err != nil {
		status = "degraded"
		upstreams["directory"] = "unreachable"
	} else {
		upstreams["directory"] = "ok"
	}

	c.JSON(http.StatusOK, HealthResponse{Status: status, Version: version.Full(), Upstreams: upstreams})
}
