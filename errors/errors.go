package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
)

/*
* Error codes are intended to convey detailed errors internally and to clients.
* These should be combined with the appropriate HTTP status code, but are not
* intended to supercede correct HTTP responses.
*
* Content source failures and store failures are deliberately distinct types:
* a caller must be able to tell "the page could not be fetched" apart from
* "the cache backend is down".
*
 */

const (
	// HTTP 400 Bad Request.
	// The key (URL) was empty or could not be parsed.
	InvalidKey ErrCode = 1
	// The requested TTL was not a positive number of seconds.
	InvalidTTL ErrCode = 2

	// HTTP 502 Bad Gateway.
	// The content source failed or returned an error status.
	FetchFailed ErrCode = 3
	// The content source returned more than the configured maximum.
	ContentTooLarge ErrCode = 4

	// HTTP 503 Service Unavailable.
	// The counter/cache backend could not be reached.
	StoreUnavailable ErrCode = 5

	// HTTP 504 Gateway Timeout.
	Timeout ErrCode = 6
)

// ErrCode identifies a class of error
type ErrCode uint8

// PageCacheError implements the Error interface for validation failures.
type PageCacheError struct {
	Function     string  `json:"-"`
	ErrorCode    ErrCode `json:"errorCode"`
	ErrorMessage string  `json:"errorDetail"`
}

func (e PageCacheError) Error() string {
	return e.ErrorMessage
}

// New returns a PageCacheError
func New(function string, errCode ErrCode, errMessage string) error {
	return &PageCacheError{
		Function:     function,
		ErrorCode:    errCode,
		ErrorMessage: errMessage,
	}
}

// ErrInvalidKey is returned when a caller supplies an empty key
var ErrInvalidKey = New("FetchCached", InvalidKey, "key must not be empty")

// FetchError is returned when the content source is unavailable. It is never
// cached and never retried.
type FetchError struct {
	Key string
	// StatusCode is the upstream HTTP status, 0 for transport failures
	StatusCode int
	// Remote is set when the failure happened in another process's fetch
	// round and was observed through the store
	Remote bool
	Err    error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Key, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StoreError is returned when the counter or cache backend fails
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrContentTooLarge is wrapped by a FetchError when the body exceeds the
// configured limit
var ErrContentTooLarge = New("Fetch", ContentTooLarge, "content exceeds maximum size")

// Code returns the ErrCode that best describes err, or 0 if err is not one
// of ours
func Code(err error) ErrCode {
	if err == nil {
		return 0
	}

	var pe *PageCacheError
	var fe *FetchError
	var se *StoreError

	switch {
	case goerrors.As(err, &se):
		return StoreUnavailable
	case goerrors.As(err, &pe):
		return pe.ErrorCode
	case goerrors.As(err, &fe):
		return FetchFailed
	case goerrors.Is(err, context.DeadlineExceeded):
		return Timeout
	}

	return 0
}

// HTTPStatus maps an error to the status code a handler should respond with
func HTTPStatus(err error) int {
	switch Code(err) {
	case InvalidKey, InvalidTTL:
		return http.StatusBadRequest
	case FetchFailed, ContentTooLarge:
		return http.StatusBadGateway
	case StoreUnavailable:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	}

	return http.StatusInternalServerError
}
