// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the password reset flow over JSON/HTTP.
//
// Routes:
//   - POST /api/v1/password-reset/request
//   - POST /api/v1/password-reset/confirm
//   - GET  /api/v1/password-reset/requirements
//
// Errors use a single envelope: {"error": msg, "code": code, "details": {...}}.
package httpapi
