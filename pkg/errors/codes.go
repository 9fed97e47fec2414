package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode classifies a failure surfaced to command callers.
type ErrorCode string

const (
	CodeNotFound                 ErrorCode = "not_found"
	CodeConflict                 ErrorCode = "conflict"
	CodeValidation               ErrorCode = "validation"
	CodeUnauthorized             ErrorCode = "unauthorized"
	CodeForbidden                ErrorCode = "forbidden"
	CodeInvalidState             ErrorCode = "invalid_state"
	CodeMemberNotActivated       ErrorCode = "member_not_activated"
	CodePrivacyPolicyNotAccepted ErrorCode = "privacy_policy_not_accepted"
	CodeMembershipRequired       ErrorCode = "membership_required"
	CodeContextCancelled         ErrorCode = "context_cancelled"
	CodeInternal                 ErrorCode = "internal"
)

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	CodeNotFound: {
		Code:            CodeNotFound,
		Description:     "The requested domain object does not exist",
		SuggestedAction: "Verify the identifier: fwdata household show <id>",
	},
	CodeConflict: {
		Code:            CodeConflict,
		Description:     "A row with the same unique key already exists",
		SuggestedAction: "Reload the object and retry the change",
	},
	CodeValidation: {
		Code:            CodeValidation,
		Description:     "The command failed validation",
		SuggestedAction: "Correct the input and resubmit",
	},
	CodeUnauthorized: {
		Code:            CodeUnauthorized,
		Description:     "The calling household member could not be identified",
		SuggestedAction: "Supply a mail address claim",
	},
	CodeForbidden: {
		Code:            CodeForbidden,
		Description:     "The household member may not access the resource",
		SuggestedAction: "Ask a member of the household to add you",
	},
	CodeInvalidState: {
		Code:            CodeInvalidState,
		Description:     "The operation is not valid for the current state",
		SuggestedAction: "Inspect the object: fwdata member show <mail>",
	},
	CodeMemberNotActivated: {
		Code:            CodeMemberNotActivated,
		Description:     "The household member has not been activated",
		SuggestedAction: "Activate the member with the activation code",
	},
	CodePrivacyPolicyNotAccepted: {
		Code:            CodePrivacyPolicyNotAccepted,
		Description:     "The household member has not accepted the privacy policy",
		SuggestedAction: "Accept the privacy policy before continuing",
	},
	CodeMembershipRequired: {
		Code:            CodeMembershipRequired,
		Description:     "The household member lacks the required membership",
		SuggestedAction: "Upgrade the membership",
	},
	CodeContextCancelled: {
		Code:            CodeContextCancelled,
		Retryable:       true,
		Description:     "Operation cancelled or timed out",
		SuggestedAction: "Retry, or raise the timeout with --timeout",
	},
	CodeInternal: {
		Code:            CodeInternal,
		Retryable:       true,
		Description:     "Unexpected failure in the data layer",
		SuggestedAction: "Check database health: fwdata db status",
	},
}

// IsRetryable returns whether an error code is retryable.
func IsRetryable(code ErrorCode) bool {
	info, ok := ErrorCodeRegistry[code]
	if !ok {
		return false
	}
	return info.Retryable
}

// GetErrorInfo returns metadata for an error code.
func GetErrorInfo(code ErrorCode) (ErrorCodeInfo, bool) {
	info, ok := ErrorCodeRegistry[code]
	return info, ok
}

// CodedError carries an ErrorCode alongside its cause.
type CodedError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewCodedError creates a CodedError wrapping cause.
func NewCodedError(code ErrorCode, message string, cause error) *CodedError {
	return &CodedError{Code: code, Message: message, Cause: cause}
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// Classify maps an error chain to an ErrorCode.
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeContextCancelled
	case IsNotFound(err):
		return CodeNotFound
	case IsConflict(err):
		return CodeConflict
	case IsValidation(err):
		return CodeValidation
	case IsUnauthorized(err):
		return CodeUnauthorized
	case IsForbidden(err):
		return CodeForbidden
	case IsInvalidState(err):
		return CodeInvalidState
	default:
		return CodeInternal
	}
}
