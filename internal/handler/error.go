package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/middleware"
	"github.com/dukerupert/decks/internal/service"
	"github.com/dukerupert/decks/internal/telemetry"
)

// errorBody is the JSON error envelope: {"error": {...}}.
type errorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string]string   `json:"fields,omitempty"`
	Lines   []service.LineCheck `json:"lines,omitempty"`
}

// ErrorResponse writes err to the client with the status its domain code maps to.
// Internal errors are logged, reported to Sentry and shown with a generic message.
// Stock errors carry the offending lines so the shopper can adjust the cart.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsValidationError(err) {
		ValidationErrorResponse(w, r, err)
		return
	}

	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)
	body := errorBody{Code: code, Message: domain.ErrorMessage(err)}

	var conflict *service.StockConflictError
	var stockErr *service.StockError
	switch {
	case errors.As(err, &conflict):
		body.Lines = conflict.Lines
	case errors.As(err, &stockErr):
		body.Lines = []service.LineCheck{{
			ProductID: stockErr.ProductID,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
			Reason:    stockReason(stockErr),
		}}
	}

	logError(r, err, code, status)
	writeError(w, r, status, body)
}

// ValidationErrorResponse writes field errors with 400. Non-validation errors
// fall back to ErrorResponse.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	fields := domain.GetValidationFields(err)
	if fields == nil {
		ErrorResponse(w, r, err)
		return
	}

	middleware.GetLogger(r.Context()).Info("validation failed",
		"op", validationOp(err),
		"fields", len(fields),
	)
	writeError(w, r, http.StatusBadRequest, errorBody{
		Code:    domain.EINVALID,
		Message: "Please correct the highlighted fields",
		Fields:  fields,
	})
}

// NotFoundResponse writes a 404.
func NotFoundResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found"))
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EPAYMENT:
		return http.StatusPaymentRequired
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.EGONE:
		return http.StatusGone
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests
	case domain.ENOTIMPL:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func logError(r *http.Request, err error, code string, status int) {
	logger := middleware.GetLogger(r.Context())
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"op", domain.ErrorOp(err),
		"status", status,
	}

	if status >= 500 {
		logger.Error("request failed", attrs...)
		telemetry.CaptureErrorFromContext(r.Context(), err, map[string]interface{}{
			"path":       r.URL.Path,
			"method":     r.Method,
			"request_id": middleware.GetRequestID(r.Context()),
		})
		return
	}
	logger.Info("request rejected", attrs...)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	if !acceptsJSON(r) {
		http.Error(w, body.Message, status)
		return
	}
	WriteJSON(w, status, map[string]errorBody{"error": body})
}

// acceptsJSON checks if the client prefers JSON responses.
func acceptsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/admin/") {
		return true
	}
	return strings.HasSuffix(r.URL.Path, ".json")
}

func stockReason(e *service.StockError) string {
	if e.Available == 0 {
		return service.ReasonOutOfStock
	}
	return service.ReasonInsufficientStock
}

func validationOp(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Op
	}
	return ""
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON request body into dst. Unknown fields and trailing
// data are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.Errorf(domain.ETOOLARGE, "request.decode", "Request body too large")
		}
		return domain.Errorf(domain.EINVALID, "request.decode", "Invalid JSON body")
	}
	if dec.More() {
		return domain.Errorf(domain.EINVALID, "request.decode", "Invalid JSON body")
	}
	return nil
}
