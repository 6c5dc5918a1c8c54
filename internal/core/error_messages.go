package core

// error_messages.go maps fatal run errors to user-facing messages.
//
// # Error Codes Reference
//
// Fatal run errors are mapped to user-facing messages with a code that can be
// quoted to support. Recoverable per-record failures never reach this table;
// they are written to the ledger instead.
//
//	AUTH001 - Token refresh failed: the refresh-token exchange was rejected
//	          Action: Re-authorize the configuration
//	          Patterns: "token refresh failed"
//
//	VAL001 - Unsupported collection: an input file targets a collection the API does not expose
//	         Action: Rename the file to an available collection
//	         Patterns: "collections not available"
//
//	VAL002 - Unsupported attribute: a data payload references an unknown field
//	         Action: Check all attributes exist and are published
//	         Patterns: "unsupported attributes"
//
//	VAL003 - Missing column: an input file lacks id or data
//	         Action: Add the mandatory columns
//	         Patterns: "mandatory columns"
//
//	VAL004 - No input: the input directory holds no CSV files
//	         Action: Provide at least one input table
//	         Patterns: "no input tables"
//
//	RUN001 - Aborted: a record failed while continue-on-error is disabled
//	         Action: Review the ledger for the failing record
//	         Patterns: "aborting:"
//
//	LED001 - Ledger write failed: the results file could not be written
//	         Action: Check free space and permissions of the output directory
//	         Patterns: "writing ledger entry"
//
//	CAT001 - Catalog unavailable: collection metadata could not be fetched
//	         Action: Check the organization URL and API version
//	         Patterns: "fetching collection metadata"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches.
//
// Patterns are matched case-insensitively using strings.Contains; the first
// match wins.

import (
	"fmt"
	"strings"
)

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
	{
		pattern: "token refresh failed",
		msg: UserMessage{
			Message: "Could not refresh the access token",
			Action:  "Re-authorize the configuration and try again",
			Code:    "AUTH001",
		},
	},
	{
		pattern: "collections not available",
		msg: UserMessage{
			Message: "Some input tables target collections the API does not expose",
			Action:  "Rename the input files to available collection names",
			Code:    "VAL001",
		},
	},
	{
		pattern: "unsupported attributes",
		msg: UserMessage{
			Message: "A data payload references attributes that do not exist",
			Action:  "Check all attributes exist and are published",
			Code:    "VAL002",
		},
	},
	{
		pattern: "mandatory columns",
		msg: UserMessage{
			Message: "Required columns are missing from an input table",
			Action:  "Add the id column, and the data column unless deleting",
			Code:    "VAL003",
		},
	},
	{
		pattern: "no input tables",
		msg: UserMessage{
			Message: "No input tables were found",
			Action:  "Provide at least one input table",
			Code:    "VAL004",
		},
	},
	{
		pattern: "aborting:",
		msg: UserMessage{
			Message: "The run stopped at the first failed record",
			Action:  "Review the results table for the failing record, or enable continue on error",
			Code:    "RUN001",
		},
	},
	{
		pattern: "writing ledger entry",
		msg: UserMessage{
			Message: "The results table could not be written",
			Action:  "Check free space and permissions of the output directory",
			Code:    "LED001",
		},
	},
	{
		pattern: "fetching collection metadata",
		msg: UserMessage{
			Message: "Could not obtain collection definitions",
			Action:  "Check the organization URL, the API version (v9.0, v9.1, ...) and the authorization",
			Code:    "CAT001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for details",
	Code:    "ERR000",
}

// MapError converts a technical error into a user-friendly message.
// Returns an empty UserMessage for nil.
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
