package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ignite/newsletter-engine/internal/pkg/logger"
)

// maxBodyBytes bounds request bodies; recipient lists make them large.
const maxBodyBytes = 32 << 20

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encode response failed", "error", err)
	}
}

// OK writes a 200 response.
func OK(w http.ResponseWriter, data any) { JSON(w, http.StatusOK, data) }

// Created writes a 201 response.
func Created(w http.ResponseWriter, data any) { JSON(w, http.StatusCreated, data) }

// Accepted writes a 202 response for work continuing in the background.
func Accepted(w http.ResponseWriter, data any) { JSON(w, http.StatusAccepted, data) }

// Error writes a JSON error with an optional machine-readable code.
func Error(w http.ResponseWriter, status int, message, code string) {
	JSON(w, status, ErrorResponse{Error: message, Code: code})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message, "bad_request")
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message, "not_found")
}

// Conflict writes a 409 error.
func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, message, "conflict")
}

// InternalError logs err and writes a generic 500; internals never reach
// the client.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("internal server error", "error", err)
	Error(w, http.StatusInternalServerError, "internal server error", "internal")
}

// Decode reads a JSON body into dst. It writes a 400 and returns false when
// the body is missing, too large or malformed.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			BadRequest(w, "request body is required")
			return false
		}
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
