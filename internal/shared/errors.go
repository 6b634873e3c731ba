package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed          = fmt.Errorf("authentication failed")
	ErrNotAuthenticated    = fmt.Errorf("not authenticated")
	ErrCredentialInvalid   = fmt.Errorf("credential rejected by server")
	ErrAuthorizationDenied = fmt.Errorf("authorization denied by provider")
	ErrMissingAuthParams   = fmt.Errorf("missing authorization parameters")
	ErrStateMismatch       = fmt.Errorf("invalid state parameter")
	ErrTimeout             = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrNetworkUnreachable = fmt.Errorf("network unreachable")
	ErrClientRejected     = fmt.Errorf("request rejected")
	ErrServerFault        = fmt.Errorf("server error")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrQuotaExceeded      = fmt.Errorf("daily quota exceeded")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
