// Package errors provides standardized error handling for the automation engine.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Validation errors: fail fast for the offending rule, never abort a batch.
	ErrCodeUnknownRuleType      ErrorCode = "UNKNOWN_RULE_TYPE"
	ErrCodeRuleValidationFailed ErrorCode = "RULE_VALIDATION_FAILED"
	ErrCodeInvalidTimezone      ErrorCode = "INVALID_TIMEZONE"

	// Transient external errors.
	ErrCodeStoreUnavailable        ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeCredentialRefreshFailed ErrorCode = "CREDENTIAL_REFRESH_FAILED"
	ErrCodeDeliveryFailed          ErrorCode = "DELIVERY_FAILED"
	ErrCodeConversationWriteFailed ErrorCode = "CONVERSATION_WRITE_FAILED"

	// Template errors.
	ErrCodeTemplateNotFound     ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateRenderFailed ErrorCode = "TEMPLATE_RENDER_FAILED"
	ErrCodePayloadInvalid       ErrorCode = "PAYLOAD_INVALID"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewUnknownRuleTypeError creates a non-retryable error for an anchor kind
// outside the supported set.
func NewUnknownRuleTypeError(anchor string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownRuleType,
		Message:   "Unsupported rule anchor kind",
		Details:   fmt.Sprintf("anchor: %s", anchor),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRuleValidationError creates a non-retryable rule configuration error.
func NewRuleValidationError(ruleCode, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRuleValidationFailed,
		Message:   "Rule configuration is invalid",
		Details:   fmt.Sprintf("rule: %s, %s", ruleCode, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTimezoneError creates a non-retryable timezone resolution error.
func NewInvalidTimezoneError(tz string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTimezone,
		Message:   "Timezone could not be resolved",
		Details:   fmt.Sprintf("timezone: %s, error: %s", tz, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError creates a retryable persistence error.
func NewStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Persistent store error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCredentialRefreshFailedError creates a retryable credential service error.
func NewCredentialRefreshFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCredentialRefreshFailed,
		Message:   "Channel credential refresh failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryFailedError creates a retryable outbound delivery error.
func NewDeliveryFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryFailed,
		Message:   "Message delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewConversationWriteFailedError creates a retryable conversation store error.
func NewConversationWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeConversationWriteFailed,
		Message:   "Conversation write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template lookup error.
func NewTemplateNotFoundError(templateID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Template not found in registry",
		Details:   fmt.Sprintf("templateId: %s", templateID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateRenderFailedError creates a non-retryable render error.
func NewTemplateRenderFailedError(templateID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateRenderFailed,
		Message:   "Template rendering failed",
		Details:   fmt.Sprintf("templateId: %s, error: %s", templateID, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPayloadInvalidError creates a non-retryable payload schema error.
func NewPayloadInvalidError(templateID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePayloadInvalid,
		Message:   "Payload does not satisfy template schema",
		Details:   fmt.Sprintf("templateId: %s, %s", templateID, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsValidation reports whether err is a rule-level configuration error.
func IsValidation(err error) bool {
	se, ok := err.(*StandardError)
	if !ok {
		return false
	}
	switch se.Code {
	case ErrCodeUnknownRuleType, ErrCodeRuleValidationFailed, ErrCodeInvalidTimezone:
		return true
	}
	return false
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	se, ok := err.(*StandardError)
	return ok && se.Retryable
}
