package errors

import (
	// Go internal packages
	"errors"
)

// Error defines a standard application error.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// Wrapped underlying error.
	WrappedErr error `json:"-"`
}

// Error returns the message, followed by the wrapped error when present.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.WrappedErr != nil:
		return e.Message + ": " + e.WrappedErr.Error()
	case e.Message != "":
		return e.Message
	case e.WrappedErr != nil:
		return e.WrappedErr.Error()
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.WrappedErr
}

// NewError returns standard go error with given string
func NewError(e string) error {
	return errors.New(e)
}

// Kind defines the kind or class of an error.
type Kind uint8

// Transport agnostic error "kinds"
const (
	Other            Kind = iota // Unclassified error
	Internal                     // Internal error
	Conflict                     // Conflict when an entity already exists
	Invalid                      // Invalid input, validation error etc
	NotFound                     // Entity does not exist
	Unauthorized                 // Missing or invalid credentials
	Forbidden                    // Authenticated but not allowed
	SignatureInvalid             // Webhook authenticity check failed
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "unclassified error"
	case Internal:
		return "internal error"
	case Conflict:
		return "conflict"
	case Invalid:
		return "invalid input"
	case NotFound:
		return "entity not found"
	case Unauthorized:
		return "authentication required"
	case Forbidden:
		return "authorization denied"
	case SignatureInvalid:
		return "invalid signature"
	default:
		return "unknown error kind"
	}
}

// E builds an *Error from its arguments: a Kind, a message string and/or a
// wrapped error, in any order.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case error:
			e.WrappedErr = arg
		case string:
			e.Message = arg
		}
	}
	return e
}

// KindOf reports the first non-Other kind found along err's chain.
func KindOf(err error) Kind {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return Other
		}
		if e.Kind != Other {
			return e.Kind
		}
		err = e.WrappedErr
	}
	return Other
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// NewInternalServerError creates a new internal server error
func NewInternalServerError(msg string) error {
	return E(Internal, msg)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string) error {
	return E(NotFound, msg)
}

// NewInvalidParamsError creates a new invalid parameters error
func NewInvalidParamsError(msg string) error {
	return E(Invalid, msg)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(msg string) error {
	return E(Unauthorized, msg)
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(msg string) error {
	return E(Forbidden, msg)
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return E(Conflict, msg)
}

var (
	As = errors.As
	Is = errors.Is
)
