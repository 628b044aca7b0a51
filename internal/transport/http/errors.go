package http

import (
	"bytes"
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"

	"quantdl/internal/errors"
	"quantdl/internal/infrastructure"
)

// problem is an RFC 7807 style error body.
type problem struct {
	Type    string      `json:"type"`
	Title   string      `json:"title"`
	Status  int         `json:"status"`
	Detail  string      `json:"detail,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// statusForCode maps the domain error taxonomy to HTTP status codes.
func statusForCode(code errors.Code) int {
	switch code {
	case errors.CodeNotFound, errors.CodeFieldNotFound:
		return http.StatusNotFound
	case errors.CodeParse, errors.CodeRejectedExpression, errors.CodeUnboundVariable,
		errors.CodeColumnMismatch, errors.CodeDateMismatch:
		return http.StatusUnprocessableEntity
	case errors.CodeSessionNotActive:
		return http.StatusConflict
	case errors.CodeTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// renderError writes an error as a problem response, mapping domain errors to
// their codes and everything else to a 500.
func renderError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ctx := r.Context()
	p := problem{
		Type:    "/errors/internal",
		Title:   "Internal Server Error",
		Status:  http.StatusInternalServerError,
		Detail:  "an unexpected error occurred",
		TraceID: infrastructure.GetTraceID(ctx),
	}
	var de *errors.DomainError
	if goerrors.As(err, &de) {
		p.Status = statusForCode(de.Code)
		p.Type = "/errors/" + string(de.Code)
		p.Title = string(de.Code)
		p.Detail = de.Message
		p.Code = string(de.Code)
		p.Details = de.Details
	}
	if p.Status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", "error", err, "path", r.URL.Path)
	} else {
		logger.WarnContext(ctx, "request rejected", "error", err, "path", r.URL.Path)
	}
	writeProblem(w, p)
}

// writeProblem writes the problem body itself because render.JSON would
// overwrite the Content-Type header with application/json.
func writeProblem(w http.ResponseWriter, p problem) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(p); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	w.Write(buf.Bytes())
}

// renderValidation writes a 400 for a malformed or invalid request payload.
func renderValidation(w http.ResponseWriter, r *http.Request, detail string) {
	p := problem{
		Type:    "/errors/validation",
		Title:   "Bad Request",
		Status:  http.StatusBadRequest,
		Detail:  detail,
		TraceID: infrastructure.GetTraceID(r.Context()),
	}
	writeProblem(w, p)
}
