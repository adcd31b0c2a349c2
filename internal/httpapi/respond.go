// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/samber/oops"
)

// maxBodyBytes caps request bodies; the API only carries small JSON documents.
const maxBodyBytes = 1 << 20

// statusForError maps a service error to an HTTP status code.
func statusForError(err error) int {
	var oopsErr oops.OopsError
	if !errors.As(err, &oopsErr) {
		return http.StatusInternalServerError
	}

	switch oopsErr.Code() {
	case "AUTH_INVALID_EMAIL", "AUTH_INVALID_USERNAME", "AUTH_INVALID_PASSWORD",
		"AUTH_DUPLICATE", "AUTH_MISSING_IDENTIFIER":
		return http.StatusBadRequest
	case "AUTH_INVALID_CREDENTIALS", "SESSION_INVALID":
		return http.StatusUnauthorized
	case "USER_NOT_FOUND":
		return http.StatusNotFound
	case "AUTH_RATE_LIMITED":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage returns the error text safe to expose to API clients.
// Backend failures are reported generically; the detail goes to the log.
func clientMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // Best effort, client may have disconnected
	json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"status": "success"}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status": "error",
		"error":  message,
	})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, clientMessage(err, status))
}

// decodeBody parses the JSON request body into dst. It reports false after
// writing a 400 response when the body is unreadable or malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}
