// Package controller exposes the gateway's HTTP and WebSocket surface.
package controller

import (
	"judgehub/internal/gateway/service"
	"judgehub/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService *service.SubmitService
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService *service.SubmitService) *SubmitController {
	return &SubmitController{submitService: submitService}
}

// Create handles submission requests.
func (h *SubmitController) Create(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	out, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		UserID:     req.UserID,
		SourceCode: req.SourceCode,
		LanguageID: req.LanguageID,
		Stdin:      req.Stdin,
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, SubmitResponse{
		SubmissionID: out.SubmissionID,
		Status:       string(out.Status),
	})
}

// GetStatus returns status for one submission.
func (h *SubmitController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	snapshot, err := h.submitService.GetStatus(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, StatusResponse{
		SubmissionID:  snapshot.SubmissionID,
		Status:        string(snapshot.Status),
		Stdout:        snapshot.Stdout,
		Stderr:        snapshot.Stderr,
		ExecutionTime: snapshot.ExecutionTime,
	})
}

// SubmitRequest defines submission payload.
type SubmitRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
	LanguageID int    `json:"language_id" binding:"required"`
	Stdin      string `json:"stdin"`
}

// SubmitResponse is returned once the submission is queued.
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
}

// StatusResponse mirrors the stored progress of one submission.
type StatusResponse struct {
	SubmissionID  string  `json:"submission_id"`
	Status        string  `json:"status"`
	Stdout        string  `json:"stdout,omitempty"`
	Stderr        string  `json:"stderr,omitempty"`
	ExecutionTime float64 `json:"execution_time,omitempty"`
}
