// Package errors provides standardized error codes for the patcher.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (env, rpc, config, session, backend)
//   - error: The specific error type within that domain
//
// Startup failures (env, rpc.server_open_failed, config) are fatal and end the
// process with a non-zero status. Failures inside a remote operation abort that
// operation only; the listener keeps serving.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Environment domain - process environment problems detected at startup
	CodeHomeNotFound = "env.home_not_found" // HOME is unset or empty

	// RPC domain - OSC listener and message handling
	CodeRPCServerOpenFailed = "rpc.server_open_failed" // No listener could be bound after retries
	CodeRPCInvalidMessage   = "rpc.invalid_message"    // Malformed packet or unexpected type tags
	CodeRPCHandlerMissing   = "rpc.handler_missing"    // No method registered for the address
	CodeRPCSendFailed       = "rpc.send_failed"        // Failed to encode or send a message
	CodeRPCRateLimited      = "rpc.rate_limited"       // Too many messages per second

	// Config domain - config.cfg and the patchbays directory
	CodeConfigFileOpenFailed  = "config.file_open_failed"  // config.cfg could not be opened
	CodeConfigDirCreateFailed = "config.dir_create_failed" // patchbays/ could not be created

	// Settings domain - the TOML settings file
	CodeSettingsInvalid = "settings.invalid" // Settings file missing or unparsable

	// Session domain - the session manager handshake
	CodeSessionURLInvalid     = "session.url_invalid"     // NSM_URL is not an osc.udp URL
	CodeSessionAnnounceFailed = "session.announce_failed" // Manager rejected the announce
	CodeSessionAlreadyOpen    = "session.already_open"    // A second open was received
	CodeSessionNotOpen        = "session.not_open"        // Operation received before the session is ready

	// Backend domain - the external patch tool
	CodeBackendToolFailed = "backend.tool_failed" // Tool could not run or exited non-zero
	CodeBackendSeedFailed = "backend.seed_failed" // Placeholder patch file could not be written

	// Patch domain - patch naming
	CodePatchInvalidName = "patch.invalid_name" // Name is not a single file name

	// Storage domain - history database
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data
	CodeStorageQueryFailed = "storage.query_failed" // Failed to read stored data

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "config.file_open_failed")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// Used when an error has to be reported over OSC as /error arguments.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// HomeNotFound creates an "env.home_not_found" error.
func HomeNotFound() *CodedError {
	return New(CodeHomeNotFound, "HOME environment variable is not set")
}

// RPCServerOpenFailure creates an "rpc.server_open_failed" error.
// The cause is the error of the last bind attempt.
func RPCServerOpenFailure(attempts int, cause error) *CodedError {
	msg := fmt.Sprintf("could not open OSC listener after %d attempts", attempts)
	return Wrap(CodeRPCServerOpenFailed, msg, cause)
}

// FileOpenFailure creates a "config.file_open_failed" error for path.
func FileOpenFailure(path string, cause error) *CodedError {
	return Wrap(CodeConfigFileOpenFailed, fmt.Sprintf("cannot open %s", path), cause)
}

// DirectoryCreationFailure creates a "config.dir_create_failed" error for path.
func DirectoryCreationFailure(path string, cause error) *CodedError {
	return Wrap(CodeConfigDirCreateFailed, fmt.Sprintf("cannot create directory %s", path), cause)
}

// InvalidMessage creates an "rpc.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeRPCInvalidMessage, reason)
}

// HandlerMissing creates an "rpc.handler_missing" error.
func HandlerMissing(address string) *CodedError {
	return New(CodeRPCHandlerMissing, fmt.Sprintf("no method registered for %s", address))
}

// SendFailed creates an "rpc.send_failed" error.
func SendFailed(address string, cause error) *CodedError {
	return Wrap(CodeRPCSendFailed, fmt.Sprintf("failed to send %s", address), cause)
}

// RateLimited creates an "rpc.rate_limited" error.
func RateLimited(address string) *CodedError {
	return New(CodeRPCRateLimited, fmt.Sprintf("dropped %s: too many messages", address))
}

// SettingsInvalid creates a "settings.invalid" error.
func SettingsInvalid(message string, cause error) *CodedError {
	return Wrap(CodeSettingsInvalid, message, cause)
}

// URLInvalid creates a "session.url_invalid" error.
func URLInvalid(url string, cause error) *CodedError {
	return Wrap(CodeSessionURLInvalid, fmt.Sprintf("invalid session manager URL %q", url), cause)
}

// AnnounceFailed creates a "session.announce_failed" error.
// The message is the one the session manager sent with its /error reply.
func AnnounceFailed(code int32, message string) *CodedError {
	return New(CodeSessionAnnounceFailed, fmt.Sprintf("announce rejected (%d): %s", code, message))
}

// AlreadyOpen creates a "session.already_open" error.
func AlreadyOpen(instancePath string) *CodedError {
	return New(CodeSessionAlreadyOpen, fmt.Sprintf("session already open at %s", instancePath))
}

// NotOpen creates a "session.not_open" error.
func NotOpen(operation string) *CodedError {
	return New(CodeSessionNotOpen, fmt.Sprintf("%s received before the session is ready", operation))
}

// ToolFailed creates a "backend.tool_failed" error for one tool mode
// (clear, save or load).
func ToolFailed(mode string, cause error) *CodedError {
	return Wrap(CodeBackendToolFailed, fmt.Sprintf("patch tool --%s failed", mode), cause)
}

// SeedFailed creates a "backend.seed_failed" error.
func SeedFailed(path string, cause error) *CodedError {
	return Wrap(CodeBackendSeedFailed, fmt.Sprintf("cannot create patch file %s", path), cause)
}

// InvalidPatchName creates a "patch.invalid_name" error.
func InvalidPatchName(name string) *CodedError {
	return New(CodePatchInvalidName, fmt.Sprintf("invalid patch name %q", name))
}

// QueryFailed creates a "storage.query_failed" error.
func QueryFailed(what string, cause error) *CodedError {
	return Wrap(CodeStorageQueryFailed, what, cause)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
