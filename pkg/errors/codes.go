package errors

// Error codes for categorizing errors.
const (
	// CodeOK indicates success (not an error).
	CodeOK = "OK"

	// CodeValidation indicates input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// CodeNotFound indicates a stream, override or resource was not found.
	CodeNotFound = "NOT_FOUND"

	// CodeAuthRejected indicates the remote refused our credentials.
	CodeAuthRejected = "AUTH_REJECTED"

	// CodeConnectionFault indicates a transient transport failure.
	CodeConnectionFault = "CONNECTION_FAULT"

	// CodeProtocol indicates a malformed frame or response body.
	CodeProtocol = "PROTOCOL_ERROR"

	// CodeIO indicates a filesystem failure during export.
	CodeIO = "IO_ERROR"

	// CodeConfig indicates a configuration error.
	CodeConfig = "CONFIG_ERROR"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"
)

// ErrorCategory represents a high-level error category.
type ErrorCategory string

const (
	// CategoryClient indicates bad input or a stale reference.
	CategoryClient ErrorCategory = "CLIENT_ERROR"

	// CategoryAuth indicates an authentication failure.
	CategoryAuth ErrorCategory = "AUTH_ERROR"

	// CategoryNetwork indicates a network-related error.
	CategoryNetwork ErrorCategory = "NETWORK_ERROR"

	// CategoryLocal indicates a local failure (filesystem, config).
	CategoryLocal ErrorCategory = "LOCAL_ERROR"

	// CategoryInternal indicates everything else.
	CategoryInternal ErrorCategory = "INTERNAL_ERROR"
)

// GetCategory returns the category for an error code.
func GetCategory(code string) ErrorCategory {
	switch code {
	case CodeValidation, CodeNotFound:
		return CategoryClient
	case CodeAuthRejected:
		return CategoryAuth
	case CodeConnectionFault, CodeProtocol:
		return CategoryNetwork
	case CodeIO, CodeConfig:
		return CategoryLocal
	default:
		return CategoryInternal
	}
}

// IsRetryable returns true if an error with the given code should be retried.
// Only transport faults qualify; protocol errors are tolerated by counting,
// not by retrying.
func IsRetryable(code string) bool {
	return code == CodeConnectionFault
}
