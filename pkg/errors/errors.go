package errors

import (
	"errors"
	"fmt"
)

// Error codes for the quest engine.
const (
	// Availability errors
	ErrCodeQuestNotAvailable       = "QUEST_NOT_AVAILABLE"
	ErrCodeQuestAlreadyClaimed     = "QUEST_ALREADY_CLAIMED"
	ErrCodeQuestNotFound           = "QUEST_NOT_FOUND"
	ErrCodeInvalidRecurrenceConfig = "INVALID_RECURRENCE_CONFIG"

	// Completion review errors
	ErrCodeCompletionNotFound      = "COMPLETION_NOT_FOUND"
	ErrCodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"

	// Exchange errors
	ErrCodeUnsupportedExchangePair = "UNSUPPORTED_EXCHANGE_PAIR"
	ErrCodeInsufficientBalance     = "INSUFFICIENT_BALANCE"

	// Database errors
	ErrCodeDatabaseError     = "DATABASE_ERROR"
	ErrCodeTransactionFailed = "TRANSACTION_FAILED"

	// Config errors
	ErrCodeConfigInvalid = "CONFIG_INVALID"

	// Validation errors
	ErrCodeInvalidInput = "INVALID_INPUT"
)

// EngineError represents an error returned by the quest engine.
type EngineError struct {
	Code    string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError.
func NewEngineError(code, message string, err error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first EngineError in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsRecoverable reports whether the end user can resolve err by refreshing or adjusting input.
//
// Recoverable:
//   - QUEST_NOT_AVAILABLE: state changed, refresh and retry
//   - QUEST_ALREADY_CLAIMED: lost a single-slot race
//   - INSUFFICIENT_BALANCE: lower the amount
//   - INVALID_INPUT
//
// Everything else (configuration, database, unknown) needs an admin or is a bug.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeQuestNotAvailable, ErrCodeQuestAlreadyClaimed, ErrCodeInsufficientBalance, ErrCodeInvalidInput:
		return true
	default:
		return false
	}
}

// ErrQuestNotAvailable returns an error when a quest is completed outside the open state.
func ErrQuestNotAvailable(questID, state string) *EngineError {
	return &EngineError{
		Code:    ErrCodeQuestNotAvailable,
		Message: fmt.Sprintf("quest %s is not available (state: %s)", questID, state),
	}
}

// ErrQuestAlreadyClaimed returns an error when another user won a single-slot quest.
func ErrQuestAlreadyClaimed(questID string) *EngineError {
	return &EngineError{
		Code:    ErrCodeQuestAlreadyClaimed,
		Message: fmt.Sprintf("quest already claimed: %s", questID),
	}
}

// ErrQuestNotFound returns an error when a quest is not found.
func ErrQuestNotFound(questID string) *EngineError {
	return &EngineError{
		Code:    ErrCodeQuestNotFound,
		Message: fmt.Sprintf("quest not found: %s", questID),
	}
}

// ErrInvalidRecurrenceConfig describes a quest whose recurrence rule can never fire.
func ErrInvalidRecurrenceConfig(questID, reason string) *EngineError {
	return &EngineError{
		Code:    ErrCodeInvalidRecurrenceConfig,
		Message: fmt.Sprintf("invalid recurrence config for quest %s: %s", questID, reason),
	}
}

// ErrCompletionNotFound returns an error when a completion is not found.
func ErrCompletionNotFound(completionID string) *EngineError {
	return &EngineError{
		Code:    ErrCodeCompletionNotFound,
		Message: fmt.Sprintf("completion not found: %s", completionID),
	}
}

// ErrInvalidStatusTransition returns an error for a disallowed review transition.
func ErrInvalidStatusTransition(from, to string) *EngineError {
	return &EngineError{
		Code:    ErrCodeInvalidStatusTransition,
		Message: fmt.Sprintf("cannot change completion status from %s to %s", from, to),
	}
}

// ErrUnsupportedExchangePair returns an error when either side has no rate configured.
func ErrUnsupportedExchangePair(from, to string) *EngineError {
	return &EngineError{
		Code:    ErrCodeUnsupportedExchangePair,
		Message: fmt.Sprintf("unsupported exchange pair: %s -> %s", from, to),
	}
}

// ErrInsufficientBalance returns an error when a debit would make a balance negative.
func ErrInsufficientBalance(rewardTypeID, required, available string) *EngineError {
	return &EngineError{
		Code:    ErrCodeInsufficientBalance,
		Message: fmt.Sprintf("insufficient %s balance (required: %s, available: %s)", rewardTypeID, required, available),
	}
}

// ErrDatabaseError wraps database errors.
func ErrDatabaseError(operation string, err error) *EngineError {
	return &EngineError{
		Code:    ErrCodeDatabaseError,
		Message: fmt.Sprintf("database error during %s", operation),
		Err:     err,
	}
}

// ErrTransactionFailed wraps a failure to begin or commit a unit of work.
func ErrTransactionFailed(operation string, err error) *EngineError {
	return &EngineError{
		Code:    ErrCodeTransactionFailed,
		Message: fmt.Sprintf("transaction failed during %s", operation),
		Err:     err,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(reason string) *EngineError {
	return &EngineError{
		Code:    ErrCodeConfigInvalid,
		Message: fmt.Sprintf("invalid configuration: %s", reason),
	}
}

// ErrInvalidInput returns a validation error for a caller-supplied field.
func ErrInvalidInput(field, reason string) *EngineError {
	return &EngineError{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("invalid %s: %s", field, reason),
	}
}
