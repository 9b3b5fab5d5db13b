// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dispatch

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zenahq/zena-actions/services/dispatch/audit"
	"github.com/zenahq/zena-actions/services/dispatch/orchestrator"
)

// Handlers carries the HTTP surface of the dispatch service.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers builds the handler set for a service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc, logger: svc.logger}
}

// ErrorResponse is the uniform JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// TurnRequest is the wire form of one dispatch turn.
type TurnRequest struct {
	UserID          string             `json:"userId" binding:"required"`
	ConversationID  string             `json:"conversationId" binding:"required"`
	Action          string             `json:"action"`
	Input           string             `json:"input"`
	Params          map[string]any     `json:"params"`
	Chain           []ChainStepRequest `json:"chain"`
	Hints           orchestrator.Hints `json:"hints"`
	FocusEntityType string             `json:"focusEntityType"`
	FocusEntityID   string             `json:"focusEntityId"`
	VoiceMode       bool               `json:"voiceMode"`
}

// ChainStepRequest is one step of a multi-step turn.
type ChainStepRequest struct {
	Action string         `json:"action" binding:"required"`
	Params map[string]any `json:"params"`
}

// HandleTurn handles POST /v1/dispatch/turn.
//
// Description:
//
//	Runs one conversational turn through the orchestrator. Policy outcomes
//	(needs_input, needs_approval, denied, confirmation_expired, failed) are
//	reported as 200 with the result state; only an unknown action or a
//	non-degradable internal fault maps to an HTTP error.
//
// Response:
//
//	200 OK: orchestrator.Result
//	400 Bad Request: Malformed body
//	404 Not Found: Action name did not resolve
//	500 Internal Server Error: Execution fault
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleTurn(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleTurn")

	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid turn payload: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	turn := orchestrator.TurnRequest{
		UserID:          req.UserID,
		ConversationID:  req.ConversationID,
		Action:          req.Action,
		Input:           req.Input,
		Params:          req.Params,
		Hints:           req.Hints,
		FocusEntityType: req.FocusEntityType,
		FocusEntityID:   req.FocusEntityID,
		VoiceMode:       req.VoiceMode,
	}
	for _, step := range req.Chain {
		turn.Chain = append(turn.Chain, orchestrator.ChainStep{
			Action: step.Action,
			Params: step.Params,
		})
	}

	result, err := h.svc.Orchestrator.Dispatch(c.Request.Context(), turn)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrActionNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: err.Error(),
				Code:  "ACTION_NOT_FOUND",
			})
		default:
			logger.Error("turn failed",
				slog.String("user_id", req.UserID),
				slog.Any("error", err),
			)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "action execution failed",
				Code:  "EXECUTION_FAILED",
			})
		}
		return
	}

	logger.Info("turn dispatched",
		slog.String("user_id", req.UserID),
		slog.String("state", string(result.State)),
	)
	c.JSON(http.StatusOK, result)
}

// ActionSummary is the catalog listing entry.
type ActionSummary struct {
	Name        string   `json:"name"`
	Domain      string   `json:"domain"`
	Description string   `json:"description"`
	Approval    string   `json:"approval"`
	Background  bool     `json:"background"`
	Required    []string `json:"required,omitempty"`
	Recommended []string `json:"recommended,omitempty"`
}

// HandleListActions handles GET /v1/dispatch/actions.
//
// Response:
//
//	200 OK: {"actions": [ActionSummary], "count": N}
func (h *Handlers) HandleListActions(c *gin.Context) {
	defs := h.svc.Registry.All()

	actions := make([]ActionSummary, 0, len(defs))
	for _, def := range defs {
		summary := ActionSummary{
			Name:        def.Name,
			Domain:      def.Domain,
			Description: def.Description,
			Approval:    def.Approval.String(),
			Background:  def.Background,
		}
		for _, f := range def.Schema.Required {
			summary.Required = append(summary.Required, f.Name)
		}
		for _, f := range def.Schema.Recommended {
			summary.Recommended = append(summary.Recommended, f.Name)
		}
		actions = append(actions, summary)
	}

	c.JSON(http.StatusOK, gin.H{
		"actions": actions,
		"count":   len(actions),
	})
}

// HandleAuditQuery handles GET /v1/dispatch/audit.
//
// Description:
//
//	Queries the persisted audit trail for a user. Returns 503 when the
//	service runs without a persistent trail.
//
// Query Parameters:
//
//	user_id: Owner of the trail entries (required)
//	action: Filter to one canonical action name (optional)
//	since: RFC 3339 lower bound on entry time (optional)
//	limit: Maximum entries, default 100 (optional)
//
// Response:
//
//	200 OK: {"entries": [audit.Entry], "count": N}
//	400 Bad Request: Missing or malformed parameter
//	503 Service Unavailable: No persistent trail configured
func (h *Handlers) HandleAuditQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleAuditQuery")

	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "user_id parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	query := audit.Query{
		UserID: userID,
		Action: c.Query("action"),
		Limit:  100,
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			query.Limit = parsed
		}
	}
	if sinceStr := c.Query("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "since must be RFC 3339: " + err.Error(),
				Code:  "INVALID_PARAMETER",
			})
			return
		}
		query.Since = since
	}

	entries, err := h.svc.Auditor.Find(c.Request.Context(), query)
	if err != nil {
		if errors.Is(err, audit.ErrNoTrail) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: "audit trail persistence not configured",
				Code:  "TRAIL_NOT_AVAILABLE",
			})
			return
		}
		logger.Error("audit query failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "audit query failed: " + err.Error(),
			Code:  "AUDIT_QUERY_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"actions":  len(h.svc.Registry.Names()),
		"sessions": h.svc.Sessions.Len(),
	})
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
