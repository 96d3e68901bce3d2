package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/assistauth/internal/apperr"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
	Message string     `json:"message,omitempty"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Debug   *debugInfo        `json:"debug,omitempty"`
}

// debugInfo is only filled in dev mode.
type debugInfo struct {
	Error string `json:"error"`
	Stack string `json:"stack,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respond(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

// respondError classifies err, logs it and writes the error envelope.
// Server-side failures are logged with their stack, client errors at warn
// level without one.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.Classify(err)
	ctx := r.Context()

	if ae.ServerSide() {
		h.logger.Error(ctx, "request failed",
			"error", err,
			"stack", ae.Stack(),
			"method", r.Method,
			"path", r.URL.Path,
			"ip", clientIP(r),
		)
	} else {
		h.logger.Warn(ctx, "request rejected",
			"code", ae.Kind.Code(),
			"message", ae.Message,
			"method", r.Method,
			"path", r.URL.Path,
		)
	}

	body := &errorBody{Code: ae.Kind.Code(), Message: ae.Message, Details: ae.Details}
	if h.devMode {
		body.Debug = &debugInfo{Error: err.Error(), Stack: ae.Stack()}
	}

	if ae.Kind == apperr.KindTooManyRequests && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, ae.Status(), envelope{Success: false, Error: body})
}

const maxBodyBytes = 64 << 10

// decode reads a JSON body into dst. Unknown fields are rejected.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.BadRequest("request body too large")
		}
		return apperr.BadRequest("invalid JSON body")
	}
	return nil
}

// required reports the named fields that are empty.
func required(fields map[string]string) error {
	details := map[string]string{}
	for name, v := range fields {
		if v == "" {
			details[name] = "is required"
		}
	}
	if len(details) > 0 {
		return apperr.BadRequest("validation failed").WithDetails(details)
	}
	return nil
}
