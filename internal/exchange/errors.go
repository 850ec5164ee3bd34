package exchange

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Error codes returned by the exchange API
const (
	ErrorInvalidSessionInformation = "INVALID_SESSION_INFORMATION"
	ErrorInsufficientFunds         = "INSUFFICIENT_FUNDS"
	ErrorMarketSuspended           = "MARKET_SUSPENDED"
	ErrorOrderLimitExceeded        = "ORDER_LIMIT_EXCEEDED"
	ErrorInvalidBetSize            = "INVALID_BET_SIZE"
	ErrorOperationNotAllowed       = "OPERATION_NOT_ALLOWED"
)

// APIError represents an error from the exchange API
type APIError struct {
	Message   string
	ErrorCode string
	Data      string
	Cause     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error: %s (code: %s)", e.Message, e.ErrorCode)
}

// AuthenticationError represents an authentication failure
type AuthenticationError struct {
	Message string
	Cause   error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error: %s", e.Message)
}

// InsufficientFundsError represents insufficient account funds
type InsufficientFundsError struct {
	Message string
	Cause   error
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %s", e.Message)
}

// MarketSuspendedError represents a suspended market
type MarketSuspendedError struct {
	MarketID string
	Message  string
	Cause    error
}

func (e *MarketSuspendedError) Error() string {
	return fmt.Sprintf("market suspended [%s]: %s", e.MarketID, e.Message)
}

// NewAPIError creates a new exchange API error
func NewAPIError(message, code string, cause error) *APIError {
	return &APIError{
		Message:   message,
		ErrorCode: code,
		Cause:     cause,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string, cause error) *AuthenticationError {
	return &AuthenticationError{
		Message: message,
		Cause:   cause,
	}
}

// NewInsufficientFundsError creates a new insufficient funds error
func NewInsufficientFundsError(message string, cause error) *InsufficientFundsError {
	return &InsufficientFundsError{
		Message: message,
		Cause:   cause,
	}
}

// NewMarketSuspendedError creates a new market suspended error
func NewMarketSuspendedError(marketID, message string, cause error) *MarketSuspendedError {
	return &MarketSuspendedError{
		MarketID: marketID,
		Message:  message,
		Cause:    cause,
	}
}

// MapAPIError maps exchange API error codes to specific error types
func MapAPIError(errorCode string, message string, logger *logrus.Logger) error {
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"error_code": errorCode,
			"message":    message,
		}).Debug("Exchange error")
	}

	switch errorCode {
	case ErrorInvalidSessionInformation:
		return NewAuthenticationError("invalid session information", nil)
	case ErrorInsufficientFunds:
		return NewInsufficientFundsError("insufficient funds for this bet", nil)
	case ErrorMarketSuspended:
		return NewMarketSuspendedError("", "market suspended", nil)
	case ErrorOrderLimitExceeded:
		return fmt.Errorf("order limit has been exceeded: %s", message)
	case ErrorInvalidBetSize:
		return fmt.Errorf("invalid bet size: %s", message)
	case ErrorOperationNotAllowed:
		return fmt.Errorf("operation not allowed: %s", message)
	default:
		return NewAPIError(message, errorCode, nil)
	}
}
