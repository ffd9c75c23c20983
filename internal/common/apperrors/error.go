// Package apperrors provides the error type used across cardlink services.
// It implements the standard error interface while adding support for error
// chaining, HTTP status codes, and wire error codes so that a single error
// value can drive both logging and the on-the-wire error envelope.
package apperrors

// Error defines the interface for application errors. It extends the standard
// error interface with methods for wrapping, status code management, and wire
// code tagging. All methods return Error to support method chaining.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // creates a new error using current as template
	Msg(msg string) Error                  // creates a new error with message and wraps original
	MsgErr(msg string, err ...error) Error // creates error with message and wraps extra errors
	Err(err ...error) Error                // attaches additional errors to current error
	SetStatusCode(int) Error               // sets HTTP status code for the error
	StatusCode() int                       // returns the current status code
	SetWireCode(string) Error              // sets the stable wire error code
	WireCode() string                      // returns the wire error code, empty if unset
	ErrorAll() string                      // returns full message including wrapped errors
	UnwrapAll() []error                    // returns all wrapped errors
}
