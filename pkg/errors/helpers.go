package errors

import "errors"

// IsNotFound checks if an error indicates a stream, override or resource was not found.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr) || errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr) || errors.Is(err, ErrInvalidInput)
}

// IsAuthRejected checks if the remote refused our credentials.
func IsAuthRejected(err error) bool {
	if err == nil {
		return false
	}

	var authErr *AuthRejectedError
	return errors.As(err, &authErr) || errors.Is(err, ErrAuthRejected)
}

// IsConnectionFault checks if an error is a transient transport failure.
func IsConnectionFault(err error) bool {
	if err == nil {
		return false
	}

	var faultErr *ConnectionFaultError
	return errors.As(err, &faultErr) || errors.Is(err, ErrConnectionFault)
}

// IsProtocol checks if an error came from a malformed frame.
func IsProtocol(err error) bool {
	if err == nil {
		return false
	}

	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}

// IsIO checks if an error is an export IO failure.
func IsIO(err error) bool {
	if err == nil {
		return false
	}

	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// IsInternal checks if an error is an internal error.
func IsInternal(err error) bool {
	if err == nil {
		return false
	}

	var internalErr *InternalError
	return errors.As(err, &internalErr)
}

// ShouldRetry checks if an operation should be retried based on the error.
// Auth rejections always win over anything retryable further down the chain.
func ShouldRetry(err error) bool {
	if err == nil || IsAuthRejected(err) {
		return false
	}

	if IsConnectionFault(err) {
		return true
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return IsRetryable(customErr.Code())
	}

	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return customErr.Code()
	}

	switch {
	case IsNotFound(err):
		return CodeNotFound
	case IsAuthRejected(err):
		return CodeAuthRejected
	case IsValidation(err):
		return CodeValidation
	case IsConnectionFault(err):
		return CodeConnectionFault
	default:
		return CodeInternal
	}
}
