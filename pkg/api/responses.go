package api

import "time"

// apiVersion is reported on every success envelope (spec §6).
const apiVersion = "v1"

// successResponse wraps a synchronous processing result in the
// success/request_id/timestamp/api_version/data envelope spec §6
// requires for POST /process_article and POST /process_fragment.
type successResponse struct {
	Success    bool   `json:"success"`
	RequestID  string `json:"request_id"`
	Timestamp  string `json:"timestamp"`
	APIVersion string `json:"api_version"`
	Data       any    `json:"data"`
}

func newSuccessResponse(requestID string, data any) successResponse {
	return successResponse{
		Success:    true,
		RequestID:  requestID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIVersion: apiVersion,
		Data:       data,
	}
}

// acceptedResponse is returned when an item is dispatched to background
// processing instead of run synchronously (spec §6, 202 case).
type acceptedResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
}

// statusResponse is the body of GET /status/{job_id}.
type statusResponse struct {
	JobID     string `json:"job_id"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Upstreams map[string]string `json:"upstreams"`
}

// errorResponse is the shape of every non-2xx response.
type errorResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	SupportCode string `json:"support_code,omitempty"`
}
