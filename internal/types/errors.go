// Package types holds payloads shared by the HTTP handlers and middleware.
package types

const (
	CodeBadRequest    = "MACHINE_400"
	CodeUnauthorized  = "MACHINE_401"
	CodeForbidden     = "MACHINE_403"
	CodeUnavailable   = "MACHINE_503"
	CodeJournalFailed = "JOURNAL_500"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds the error payload every endpoint answers with.
// details may be a string, a map or nil.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
