// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with custom validators and user-friendly error
// messages. It integrates with the API error format for consistent error
// responses and is shared by the config package for struct-tag constraints.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Custom "loglevel" validator accepting the pipeline's severity names
//   - Field names resolved from koanf/json tags so errors match config keys
//   - Comprehensive error translation to human-readable messages
//   - APIError conversion matching the HTTP API error format
//   - Future v11 compatibility with WithRequiredStructEnabled
//
// # Quick Start
//
//	type IngestRequest struct {
//	    Category string `json:"category" validate:"required,max=256"`
//	    Level    string `json:"level" validate:"required,loglevel"`
//	    Message  string `json:"message" validate:"required"`
//	}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    var req IngestRequest
//	    if err := json.Decode(r.Body, &req); err != nil {
//	        // handle decode error
//	    }
//
//	    if verr := validation.ValidateStruct(&req); verr != nil {
//	        apiErr := verr.ToAPIError()
//	        respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	        return
//	    }
//
//	    // proceed with valid request
//	}
//
// # Common Validation Tags
//
// String validations:
//   - required: Field must not be empty
//   - min=n: Minimum length n characters
//   - max=n: Maximum length n characters
//   - url: Valid URL format
//   - datetime=layout: Valid date/time in the given layout
//
// Numeric validations:
//   - gte=n: Greater than or equal to n
//   - lte=n: Less than or equal to n
//   - gt=n: Greater than n
//   - lt=n: Less than n
//
// Enum validations:
//   - oneof=a b c: Must be one of the specified values
//
// Pipeline validations:
//   - loglevel: Must be a known severity name (trace through fatal),
//     matched case-insensitively
//
// # Error Types
//
// ValidationError represents a single field validation failure:
//
//	type ValidationError struct {
//	    Field()     string // Field name (koanf/json tag when present)
//	    Namespace() string // Dotted path, e.g. "appenders[x].type"
//	    Tag()       string // Validation tag that failed
//	    Param()     string // Tag parameter (e.g., "100" for max=100)
//	    Value()     any    // Actual value that failed
//	    Error()     string // Human-readable message
//	}
//
// RequestValidationError aggregates multiple field errors:
//
//	type RequestValidationError struct {
//	    Errors() []ValidationError
//	    Error()  string           // Combined message
//	    ToAPIError() *APIError    // Convert to API error format
//	}
//
// # API Error Integration
//
// The ToAPIError method produces errors matching the HTTP API format:
//
//	// Single field error
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "level must be a valid log level",
//	    "details": {"field": "level", "tag": "loglevel", "value": "verbose"}
//	}
//
//	// Multiple field errors
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "category: category is required; level: level must be a valid log level",
//	    "details": {
//	        "fields": [
//	            {"field": "category", "tag": "required", "message": "..."},
//	            {"field": "level", "tag": "loglevel", "message": "..."}
//	        ]
//	    }
//	}
//
// # Error Message Translation
//
// Human-readable messages are generated for common validation tags:
//
//	required   -> "category is required"
//	loglevel   -> "level must be a valid log level"
//	min=3      -> "name must be at least 3 characters"
//	max=256    -> "category must be at most 256 characters"
//	gte=1      -> "dataRetentionDays must be greater than or equal to 1"
//	lte=65535  -> "port must be less than or equal to 65535"
//	oneof=a b  -> "onLimit must be one of: a b"
//
// # Thread Safety
//
// The singleton validator is initialized once and safe for concurrent use:
//
//	validate := validation.GetValidator()  // Thread-safe
//	err := validation.ValidateStruct(&req) // Thread-safe
//
// # Performance
//
// The validator caches struct reflection information:
//   - First validation of a struct type: ~1ms (reflection + caching)
//   - Subsequent validations: ~10us (cached)
//   - Memory: ~500 bytes per cached struct type
//
// # See Also
//
//   - internal/config: Aggregated config validation folding in tag checks
//   - internal/api: Request handlers using validation
//   - github.com/go-playground/validator/v10: Underlying library
package validation
