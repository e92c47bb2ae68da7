package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is the structured body every templated reply uses. Code is
// stable across releases; Details is for humans.
type Response struct {
	Status  int            `json:"status"`
	Message string         `json:"message"`
	Details string         `json:"details"`
	Code    string         `json:"code"`
	Extra   map[string]any `json:"extra,omitempty"`
}

var responses = map[string]Response{
	"read_only": {
		Status:  http.StatusForbidden,
		Message: "Forbidden",
		Details: "The archive is in read-only mode. Try again later or contact the archive's administrator.",
	},
	"wrong_content_type": {
		Status:  http.StatusBadRequest,
		Message: "Bad Request",
		Details: "The file uploaded does not meet the expected MIME type.",
	},
	"invalid_request": {
		Status:  http.StatusBadRequest,
		Message: "Bad Request",
		Details: "The request body could not be parsed or does not match the archive's schema.",
	},
	"no_api_key": {
		Status:  http.StatusUnauthorized,
		Message: "Unauthorized",
		Details: "You need an API key to access this endpoint.",
	},
	"auth_required": {
		Status:  http.StatusUnauthorized,
		Message: "Unauthorized",
		Details: "You must provide authentication, such as an API key or a signed URL.",
	},
	"invalid_api_key": {
		Status:  http.StatusForbidden,
		Message: "Forbidden",
		Details: "The provided API key is not valid.",
	},
	"insufficient_permissions": {
		Status:  http.StatusForbidden,
		Message: "Forbidden",
		Details: "You lack the required permissions to perform this action.",
	},
	"disabled_feature": {
		Status:  http.StatusForbidden,
		Message: "Forbidden",
		Details: "This feature has been disabled.",
	},
	"url_signature_mismatch": {
		Status:  http.StatusForbidden,
		Message: "Forbidden",
		Details: "The URL signature is not valid or has been tampered with.",
	},
	"signed_url_method": {
		Status:  http.StatusMethodNotAllowed,
		Message: "Method Not Allowed",
		Details: "Only GET requests are supported by signed URLs.",
	},
	"expired_url": {
		Status:  http.StatusForbidden,
		Message: "Forbidden",
		Details: "This signed URL has expired.",
	},
	"expires_too_late": {
		Status:  http.StatusForbidden,
		Message: "Forbidden",
		Details: "The signed URL expiry time exceeds the acceptable duration.",
	},
	"rate_limited": {
		Status:  http.StatusTooManyRequests,
		Message: "Too Many Requests",
		Details: "You have exceeded the request quota. Slow down and try again later.",
	},
	"not_in_archive": {
		Status:  http.StatusNotFound,
		Message: "Not Found",
		Details: "The media requested was not found in the archive.",
	},
	"not_found": {
		Status:  http.StatusNotFound,
		Message: "Not Found",
		Details: "The requested URL was not found on this server.",
	},
	"already_exists": {
		Status:  http.StatusConflict,
		Message: "Conflict",
		Details: "The resource you're trying to create already exists.",
	},
	"resource_created": {
		Status:  http.StatusCreated,
		Message: "Created",
		Details: "Resource has been successfully created.",
	},
	"resource_updated": {
		Status:  http.StatusOK,
		Message: "OK",
		Details: "Resource has been successfully updated.",
	},
	"upload_succeeded": {
		Status:  http.StatusOK,
		Message: "OK",
		Details: "Your file has been added to the archive.",
	},
	"internal_error": {
		Status:  http.StatusInternalServerError,
		Message: "Internal Server Error",
		Details: "Something went wrong while handling your request.",
	},
	"little_teapot": {
		Status:  http.StatusTeapot,
		Message: "I'm a Teapot",
		Details: "The server refuses to brew coffee, for it is, and always shall be, a teapot.",
	},
}

// Respond writes the templated reply for a response code, attaching any
// extra fields under `extra`.
func Respond(w http.ResponseWriter, code string, extra map[string]any) {
	content, ok := responses[code]
	if !ok {
		slog.Error("unknown response code", "code", code)
		content = responses["internal_error"]
		code = "internal_error"
	}

	content.Code = code
	content.Extra = extra

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(content.Status)
	if err := json.NewEncoder(w).Encode(content); err != nil {
		slog.Error("failed to encode response", "code", code, "error", err)
	}
}

// WriteJSON writes a plain JSON response outside the template table.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
