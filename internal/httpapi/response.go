// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the response envelope.
const (
	CodeInvalidRequest = "invalid_request"
	CodeRateLimited    = "rate_limited"
	CodeInvalidEmail   = "invalid_email"
	CodeInvalidToken   = "invalid_token"
	CodeUserNotFound   = "user_not_found"
	CodeWeakPassword   = "weak_password"
	CodeServerError    = "server_error"
	CodeNotFound       = "not_found"
	CodeMethodNotAllow = "method_not_allowed"
)

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// MessageResponse is the success body for request and confirm.
type MessageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// RequirementsResponse lists the password rules.
type RequirementsResponse struct {
	Requirements []string `json:"requirements"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
