/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mvcp

// Response codes surfaced to clients.
const (
	CodeGreeting       = 100
	CodeOK             = 200
	CodeOKMulti        = 201
	CodeOKSingle       = 202
	CodeUnknownCommand = 400
	CodeTimeout        = 401
	CodeMissingArg     = 402
	CodeInvalidUnit    = 403
	CodeBadFile        = 404
	CodeOutOfRange     = 405
	CodeTooManyOpen    = 406
	CodeServerError    = 500
)

// DefaultPort is the TCP port servers listen on unless configured otherwise.
const DefaultPort = 5250

var messages = map[int]string{
	CodeGreeting:       "VTR Ready",
	CodeOK:             "OK",
	CodeOKMulti:        "OK",
	CodeOKSingle:       "OK",
	CodeUnknownCommand: "Unknown command",
	CodeTimeout:        "Operation timed out",
	CodeMissingArg:     "Argument missing",
	CodeInvalidUnit:    "Unit not found",
	CodeBadFile:        "Failed to locate or open clip",
	CodeOutOfRange:     "Argument value out of range",
	CodeTooManyOpen:    "Too many files open",
	CodeServerError:    "Server Error",
}

// Message returns the default text for a response code.
func Message(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "Unknown error"
}

// IsSuccess reports whether code belongs to the 2xx family.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

// IsError reports whether code signals a failed request.
func IsError(code int) bool {
	return code > 299
}

// Normalize folds the framing variants of success back into CodeOK.
func Normalize(code int) int {
	if code == CodeOKMulti || code == CodeOKSingle {
		return CodeOK
	}
	return code
}
