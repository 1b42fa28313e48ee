package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Users quote the code; support looks it up here.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Duplicate rejected: row matches an existing institution
//	         Patterns: "duplicate of existing institution"
//	IMP002 - System busy: another import is running
//	         Patterns: "too many concurrent imports"
//	IMP003 - Request cancelled
//	         Patterns: "context canceled"
//	IMP004 - Request timeout
//	         Patterns: "context deadline exceeded"
//	IMP005 - Bad import option
//	         Patterns: "invalid import option"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            "duplicate key"
//	DB002 - Unique constraint        "unique constraint", "violates unique"
//	DB003 - Foreign key              "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused       "connection refused"
//	DB005 - Connection reset         "connection reset"
//	DB006 - Timeout                  "timeout"
//	DB007 - Deadlock                 "deadlock"
//	DB008 - Record not found         "record not found"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date            "invalid date"
//	VAL002 - Invalid number          "invalid number"
//	VAL003 - Required field          "required field"
//	VAL004 - Invalid enum            "invalid enum"
//	VAL005 - Invalid email           "invalid email"
//	VAL006 - Number out of range     "out of range"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large         "file too large", "request body too large"
//	FILE002 - Binary content         "binary data"
//	FILE003 - Invalid CSV            "invalid csv"
//	FILE004 - No file                "no file provided"
//	FILE005 - Empty file             "empty file"
//
// # Reference Lookup (REF001-REF099)
//
//	REF001 - Reference unavailable   "reference lookup"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests      "rate limit"
//
// ERR000 is the fallback; check the logs for the technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by repository Get methods when no record exists.
var ErrNotFound = errors.New("record not found")

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Import
	{
		pattern: "duplicate of existing institution",
		msg: UserMessage{
			Message: "Row matches an existing institution",
			Action:  "Re-run with skip or merge duplicates enabled, or remove the row",
			Code:    "IMP001",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "Another import is in progress",
			Action:  "Please wait a moment and try again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Re-upload the file to import the remaining rows",
			Code:    "IMP003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Split the file into smaller files and import them one at a time",
			Code:    "IMP004",
		},
	},
	{
		pattern: "invalid import option",
		msg: UserMessage{
			Message: "One of the import options has an invalid value",
			Action:  "Use true or false for the flags and a UUID for assignedOwnerId",
			Code:    "IMP005",
		},
	},

	// Reference lookup (before the database group: its transport errors
	// mention connection failures too)
	{
		pattern: "reference lookup",
		msg: UserMessage{
			Message: "External registry is unavailable",
			Action:  "Matching used local records only; no action needed",
			Code:    "REF001",
		},
	},

	// Database
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this identifier already exists",
			Action:  "Check the accounting number is not used by another institution",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your CSV",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your CSV",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "The matched institution may have been deleted; re-run the import",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "The matched institution may have been deleted; re-run the import",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "record not found",
		msg: UserMessage{
			Message: "Matched record no longer exists",
			Action:  "Re-run the import",
			Code:    "DB008",
		},
	},

	// Validation
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD or DD/MM/YYYY",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Use whole numbers without separators",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Fill in name, type, street, city, state, zip code and country",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid enum",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Check the allowed values for this field in the template",
			Code:    "VAL004",
		},
	},
	{
		pattern: "invalid email",
		msg: UserMessage{
			Message: "Invalid email address",
			Action:  "Use the name@example.com format",
			Code:    "VAL005",
		},
	},
	{
		pattern: "out of range",
		msg: UserMessage{
			Message: "A number is too large to store",
			Action:  "Use a value between -2147483648 and 2147483647",
			Code:    "VAL006",
		},
	},

	// File
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "binary data",
		msg: UserMessage{
			Message: "File is not a text CSV",
			Action:  "Export the spreadsheet as CSV (UTF-8) and upload that file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid institution CSV",
			Action:  "Download the template and check the header row",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a CSV file with data rows",
			Code:    "FILE005",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Unknown errors map to ERR000; nil maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with its user message.
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

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
