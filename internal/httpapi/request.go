// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/samber/oops"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 16 << 10

// decodeJSON reads exactly one JSON object into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close() //nolint:errcheck

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return oops.Code("HTTP_DECODE_FAILED").Wrap(err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return oops.Code("HTTP_DECODE_FAILED").Errorf("request body must contain a single JSON object")
	}
	return nil
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}
