package errors

import (
	// Go internal packages
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error defines a standard application error.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// Wrapped underlying error.
	WrappedErr error `json:"-"`
}

// Error returns the message, followed by the wrapped error when there is one.
func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.WrappedErr == nil:
		return e.Kind.String()
	case e.WrappedErr == nil:
		return e.Message
	case e.Message == "":
		return e.WrappedErr.Error()
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.WrappedErr)
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
	Other        Kind = iota // Unclassified error
	Internal                 // Internal error
	Conflict                 // Conflict when an entity already exists
	Invalid                  // Invalid input, validation error etc
	NotFound                 // Entity does not exist
	Unauthorized             // Unauthorized access
	Forbidden                // Forbidden access
	Unconfirmed              // Destructive action sent without confirmation
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
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case Unconfirmed:
		return "confirmation required"
	default:
		return "unknown error kind"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// HTTPStatus maps the kind onto a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case Invalid:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Unconfirmed:
		return http.StatusPreconditionRequired
	default:
		return http.StatusInternalServerError
	}
}

// E builds an *Error from any mix of Kind, error and string arguments.
// A string argument may be a format when followed by further non-Kind,
// non-error values.
func E(args ...interface{}) error {
	e := &Error{}
	var formatArgs []interface{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case error:
			e.WrappedErr = arg
		case string:
			if e.Message == "" {
				e.Message = arg
			} else {
				formatArgs = append(formatArgs, arg)
			}
		default:
			formatArgs = append(formatArgs, arg)
		}
	}
	if len(formatArgs) > 0 {
		e.Message = fmt.Sprintf(e.Message, formatArgs...)
	}
	// Inherit the kind of a wrapped application error.
	if e.Kind == Other && e.WrappedErr != nil {
		e.Kind = KindOf(e.WrappedErr)
	}
	return e
}

// KindOf returns the kind of the first *Error in err's chain, Other otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind != Other {
			return e.Kind
		}
		if e.WrappedErr != nil {
			return KindOf(e.WrappedErr)
		}
	}
	return Other
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
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
	As  = errors.As
	Is  = errors.Is
	New = errors.New
)
