package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	streamsvc "github.com/rzbill/esdb/internal/services/streams"
)

// Helper functions for common HTTP responses

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorBody(w, status, errorResp{Error: message})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorResp) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// decodeBody decodes the JSON body of r into v, reading at most limit bytes
// when limit is positive. It writes the error response and returns false on
// failure: 413 for an oversized body, 400 otherwise.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	body := r.Body
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	err := json.NewDecoder(body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeErrorBody(w, http.StatusRequestEntityTooLarge, errorResp{
			Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			Code:  "request_too_large",
		})
		return false
	}
	writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	return false
}

// writeServiceError maps streams service errors to HTTP statuses.
//
//	wrong expected version -> 409 Conflict
//	stream deleted         -> 410 Gone
//	stream not found       -> 404 Not Found
//	invalid request        -> 400 Bad Request
//	canceled request       -> 499
//	anything else          -> 500 Internal Server Error
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		wev      *streamsvc.WrongExpectedVersionError
		deleted  *streamsvc.StreamDeletedError
		notFound *streamsvc.StreamNotFoundError
		storage  *streamsvc.StorageError
	)
	switch {
	case errors.As(err, &wev):
		actual := wev.ActualRevision
		writeErrorBody(w, http.StatusConflict, errorResp{
			Error:          err.Error(),
			Code:           "wrong_expected_version",
			Stream:         wev.Stream,
			Expected:       wev.Expected.String(),
			ActualRevision: &actual,
			Deletion:       wev.Deletion.String(),
		})
	case errors.As(err, &deleted):
		writeErrorBody(w, http.StatusGone, errorResp{Error: err.Error(), Code: "stream_deleted", Stream: deleted.Stream})
	case errors.As(err, &notFound):
		actual := notFound.Revision
		writeErrorBody(w, http.StatusNotFound, errorResp{
			Error:          err.Error(),
			Code:           "stream_not_found",
			Stream:         notFound.Stream,
			ActualRevision: &actual,
			Deletion:       notFound.Deletion.String(),
		})
	case errors.Is(err, streamsvc.ErrInvalidRequest):
		writeErrorBody(w, http.StatusBadRequest, errorResp{Error: err.Error(), Code: "invalid_request"})
	case errors.As(err, &storage):
		writeErrorBody(w, http.StatusInternalServerError, errorResp{Error: err.Error(), Code: "storage_failure", Stream: storage.Stream, Op: storage.Op})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErrorBody(w, 499, errorResp{Error: err.Error(), Code: "canceled"})
	default:
		writeErrorBody(w, http.StatusInternalServerError, errorResp{Error: err.Error(), Code: "internal"})
	}
}

// parseLimit parses a limit string and returns a valid limit value.
//
// Returns 0 for empty strings or invalid values.
func parseLimit(limitStr string) int {
	if limitStr == "" {
		return 0
	}
	if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
		return limit
	}
	return 0
}

// parseUint parses an unsigned query value, 0 when empty or invalid.
func parseUint(s string) uint64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseWait parses a wait given either as milliseconds or a Go duration.
func parseWait(s string) time.Duration {
	if s == "" {
		return 0
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return 0
}
