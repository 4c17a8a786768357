package core

// error_messages.go defines the error taxonomy of the workflow and the
// user-friendly messages shown for each kind. Users can quote the code to
// support staff.
//
// # Validation Errors (VAL001-VAL099)
//
// Recovered locally: shown next to the offending field, block submission and
// never reach the network layer.
//
//	VAL001 - EmptyInput: A theme (or file) is required
//	VAL002 - TooLong: Theme exceeds 500 characters
//	VAL003 - EmptyName: Output file name is blank
//	VAL004 - InvalidCharacters: Output file name has characters other than A-Z a-z 0-9 _ -
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - InvalidExtension: File name does not end in .csv
//	FILE002 - InsufficientRows: Fewer than 2 data rows after the header
//	FILE003 - ParseFailure: File could not be read or parsed as CSV
//	FILE004 - Too large: File exceeds the upload size limit
//
// # Generation Errors (GEN001-GEN099)
//
// Shown as a single banner, distinct from field errors. The technical cause
// (status code, network error) is logged, not shown verbatim.
//
//	GEN001 - RequestFailed: The generation service did not return data
//	GEN002 - RequestTimedOut: No response within the 300 second deadline
//	GEN003 - EmptyPayload: The service returned no rows to preview
//	GEN004 - Busy: Too many generations in progress
//	GEN005 - In progress: A generation is already running for this session
//	GEN006 - Download gone: The requested download is no longer held
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests from one client
//
// # Default Error (ERR000)
//
// Fallback when no kind or pattern matches. Check application logs for the
// original technical error when users report ERR000.

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies workflow errors.
type Kind string

const (
	KindEmptyInput        Kind = "EmptyInput"
	KindTooLong           Kind = "TooLong"
	KindInvalidExtension  Kind = "InvalidExtension"
	KindInsufficientRows  Kind = "InsufficientRows"
	KindParseFailure      Kind = "ParseFailure"
	KindEmptyName         Kind = "EmptyName"
	KindInvalidCharacters Kind = "InvalidCharacters"
	KindRequestFailed     Kind = "RequestFailed"
	KindRequestTimedOut   Kind = "RequestTimedOut"
	KindEmptyPayload      Kind = "EmptyPayload"
)

// IsValidation reports whether k is a field-level validation kind.
func (k Kind) IsValidation() bool {
	switch k {
	case KindEmptyInput, KindTooLong, KindInvalidExtension, KindInsufficientRows,
		KindParseFailure, KindEmptyName, KindInvalidCharacters:
		return true
	}
	return false
}

// Error is a classified workflow error.
type Error struct {
	Kind    Kind
	Field   string // Form field the error belongs to, if any
	Message string // User-facing description
	Err     error  // Underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrInsufficientRows)
// works regardless of field or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrEmptyInput        = &Error{Kind: KindEmptyInput}
	ErrTooLong           = &Error{Kind: KindTooLong}
	ErrInvalidExtension  = &Error{Kind: KindInvalidExtension}
	ErrInsufficientRows  = &Error{Kind: KindInsufficientRows}
	ErrParseFailure      = &Error{Kind: KindParseFailure}
	ErrEmptyName         = &Error{Kind: KindEmptyName}
	ErrInvalidCharacters = &Error{Kind: KindInvalidCharacters}
	ErrRequestFailed     = &Error{Kind: KindRequestFailed}
	ErrRequestTimedOut   = &Error{Kind: KindRequestTimedOut}
	ErrEmptyPayload      = &Error{Kind: KindEmptyPayload}
)

// ErrSubmitInProgress is returned when Submit is called while a submission
// is already validating or in flight.
var ErrSubmitInProgress = errors.New("generation already in progress")

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[Kind]UserMessage{
	KindEmptyInput: {
		Message: "Please enter a theme",
		Action:  "Describe the data you want to generate and its fields",
		Code:    "VAL001",
	},
	KindTooLong: {
		Message: "Theme is too long",
		Action:  "Shorten the theme to 500 characters or fewer",
		Code:    "VAL002",
	},
	KindEmptyName: {
		Message: "File name is required",
		Action:  "Enter a name for the downloaded file",
		Code:    "VAL003",
	},
	KindInvalidCharacters: {
		Message: "File name contains invalid characters",
		Action:  "Use only letters, numbers, underscores and hyphens",
		Code:    "VAL004",
	},
	KindInvalidExtension: {
		Message: "Only .csv files are accepted",
		Action:  "Select a file with a .csv extension",
		Code:    "FILE001",
	},
	KindInsufficientRows: {
		Message: "The CSV needs at least 2 data rows after the header",
		Action:  "Add more rows to the file and select it again",
		Code:    "FILE002",
	},
	KindParseFailure: {
		Message: "The file could not be read as CSV",
		Action:  "Save the file as UTF-8 comma-separated values",
		Code:    "FILE003",
	},
	KindRequestFailed: {
		Message: "Error generating data",
		Action:  "Please try again",
		Code:    "GEN001",
	},
	KindRequestTimedOut: {
		Message: "The request timed out",
		Action:  "Try fewer rows or try again later",
		Code:    "GEN002",
	},
	KindEmptyPayload: {
		Message: "The generator returned no data",
		Action:  "Try a more detailed theme",
		Code:    "GEN003",
	},
}

// errorPattern maps a technical error substring to a user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers errors that are not *Error values. Patterns are matched
// case-insensitively with strings.Contains; the first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "too many concurrent generations",
		msg: UserMessage{
			Message: "System is busy with other generations",
			Action:  "Please wait a moment and try again",
			Code:    "GEN004",
		},
	},
	{
		pattern: "already in progress",
		msg: UserMessage{
			Message: "A generation is already running",
			Action:  "Wait for the current generation to finish",
			Code:    "GEN005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg:     kindMessages[KindRequestTimedOut],
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Select a smaller CSV file",
			Code:    "FILE004",
		},
	},
	{
		pattern: "download not found",
		msg: UserMessage{
			Message: "The download is no longer available",
			Action:  "Generate the data again to download it",
			Code:    "GEN006",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no kind or pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MessageFor returns the catalogue entry for a kind.
func MessageFor(k Kind) UserMessage {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return defaultMessage
}

// MapError converts an error to a user-friendly message. Classified *Error
// values map by kind; anything else falls back to substring patterns and
// finally to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var werr *Error
	if errors.As(err, &werr) {
		if msg, ok := kindMessages[werr.Kind]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message. The original
// error is preserved for logging.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
