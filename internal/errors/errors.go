// Package errors defines the S3-compatible error envelope used throughout
// the engine.
package errors

import "fmt"

// S3Error represents an S3 API error with a machine-readable code,
// human-readable message, and the HTTP status code to render it with.
type S3Error struct {
	Code       string
	Message    string
	HTTPStatus int
}

// Error implements the error interface for S3Error.
func (e *S3Error) Error() string {
	return fmt.Sprintf("S3Error %s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// The nine error kinds enumerated by the error handling design: every
// handler-level failure is one of these, mapped to the S3 XML error
// envelope with no other codes in play.
var (
	ErrUnauthorized = &S3Error{
		Code:       "Unauthorized",
		Message:    "Missing or invalid authorization header",
		HTTPStatus: 401,
	}
	ErrForbidden = &S3Error{
		Code:       "Forbidden",
		Message:    "The bearer token's bucket claim does not match the requested bucket",
		HTTPStatus: 403,
	}
	ErrNoSuchKey = &S3Error{
		Code:       "NoSuchKey",
		Message:    "The specified key does not exist",
		HTTPStatus: 404,
	}
	ErrNoSuchBucket = &S3Error{
		Code:       "NoSuchBucket",
		Message:    "The request path did not include a bucket segment",
		HTTPStatus: 404,
	}
	ErrNoSuchUpload = &S3Error{
		Code:       "NoSuchUpload",
		Message:    "The specified multipart upload does not exist",
		HTTPStatus: 404,
	}
	ErrInvalidPart = &S3Error{
		Code:       "InvalidPart",
		Message:    "One or more of the specified parts could not be found",
		HTTPStatus: 400,
	}
	ErrInvalidArgument = &S3Error{
		Code:       "InvalidArgument",
		Message:    "Invalid Argument",
		HTTPStatus: 400,
	}
	ErrNotImplemented = &S3Error{
		Code:       "NotImplemented",
		Message:    "A header you provided implies functionality that is not implemented",
		HTTPStatus: 501,
	}
	ErrInternalError = &S3Error{
		Code:       "InternalError",
		Message:    "We encountered an internal error. Please try again.",
		HTTPStatus: 500,
	}
)
