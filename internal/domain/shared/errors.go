// Package shared holds the error values and port interfaces that more than
// one layer of the gateway depends on.
package shared

// DomainError is an error with a stable machine-readable code. The HTTP
// layer maps codes onto status codes.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Sentinel errors. Wrap them with fmt.Errorf("%w: ...") to add detail.
var (
	ErrNotFound      = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput  = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState  = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrUnavailable   = NewDomainError("UNAVAILABLE", "Dependency is unavailable")
)
