// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/holomush/recovery/internal/auth"
	"github.com/holomush/recovery/pkg/errutil"
)

// Response messages. The request acknowledgement is identical for known and
// unknown accounts.
const (
	RequestAcceptedMessage = "If an account with that email exists, a password reset link has been sent."
	ResetCompletedMessage  = "Password has been reset successfully."
)

// ResetService is the subset of auth.PasswordResetService the handlers use.
type ResetService interface {
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, token, newPassword string) error
	Policy() auth.PasswordPolicy
}

// ResetHandler serves the password reset endpoints.
type ResetHandler struct {
	service ResetService
	logger  *slog.Logger
}

// NewResetHandler creates a ResetHandler.
func NewResetHandler(service ResetService, logger *slog.Logger) *ResetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetHandler{service: service, logger: logger}
}

// Request starts a reset for the submitted email.
func (h *ResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON payload", nil)
		return
	}

	if err := h.service.RequestReset(r.Context(), req.Email); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: RequestAcceptedMessage, Success: true})
}

// Confirm sets a new password using a reset token.
func (h *ResetHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirm
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON payload", nil)
		return
	}

	if err := h.service.ConfirmReset(r.Context(), req.Token, req.NewPassword); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: ResetCompletedMessage, Success: true})
}

// Requirements lists the password rules in check order.
func (h *ResetHandler) Requirements(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RequirementsResponse{Requirements: h.service.Policy().Requirements()})
}

func (h *ResetHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case auth.IsRateLimited(err):
		writeError(w, http.StatusTooManyRequests, CodeRateLimited,
			"too many password reset requests, try again later", nil)
	case auth.IsInvalidEmail(err):
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidEmail,
			"email address is invalid", map[string]any{"field": "email"})
	case auth.IsInvalidToken(err):
		writeError(w, http.StatusBadRequest, CodeInvalidToken,
			"password reset token is invalid or has expired", nil)
	case auth.IsUserResolutionFailure(err):
		writeError(w, http.StatusBadRequest, CodeUserNotFound,
			"account for this reset token could not be found", nil)
	case auth.IsWeakPassword(err):
		writeError(w, http.StatusUnprocessableEntity, CodeWeakPassword,
			"password does not meet requirements", h.weakPasswordDetails(err))
	default:
		requestID := chimiddleware.GetReqID(r.Context())
		errutil.LogErrorContext(r.Context(), h.logger, "password reset request failed", err)
		details := map[string]any{}
		if requestID != "" {
			details["request_id"] = requestID
		}
		writeError(w, http.StatusInternalServerError, CodeServerError, "internal server error", details)
	}
}

func (h *ResetHandler) weakPasswordDetails(err error) map[string]any {
	policy := h.service.Policy()
	violations := auth.Violations(err)

	codes := make([]string, 0, len(violations))
	requirements := make([]string, 0, len(violations))
	for _, v := range violations {
		codes = append(codes, string(v))
		requirements = append(requirements, policy.Describe(v))
	}
	return map[string]any{
		"field":        "new_password",
		"violations":   codes,
		"requirements": requirements,
	}
}
