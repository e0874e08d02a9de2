package xmerr

import (
	"bytes"
	"errors"
	"fmt"
)

// Code represents the profile error-code enumerate
type Code int

const (
	// CodeStorageFailure is an error reported by the storage engine
	CodeStorageFailure Code = iota
	// CodeNoActiveConnection indicates no profile connection is active
	CodeNoActiveConnection
	// CodeUnknownElement indicates the element is not recorded in the profile
	CodeUnknownElement
	// CodeUnknownAttribute indicates the attribute is not associated with the element
	CodeUnknownAttribute
	// CodeDuplicateName indicates a connection with the same name already exists
	CodeDuplicateName
	// CodeNotFound indicates no connection with the name exists
	CodeNotFound
	// CodeOpenFailed indicates the profile storage could not be opened or initialised
	CodeOpenFailed
	// CodeEmptyName indicates an empty element, attribute or connection name
	CodeEmptyName
	// CodeProfileCorrupted indicates the profile no longer satisfies the
	// document model's invariants
	CodeProfileCorrupted
	// CodeInvalidNode indicates a document node id that is unknown or not attached
	CodeInvalidNode
	// CodeInvalidComment indicates comment text that cannot be written as
	// an XML comment
	CodeInvalidComment
)

var codeNames = [...]string{
	CodeStorageFailure:     "storage-failure",
	CodeNoActiveConnection: "no-active-connection",
	CodeUnknownElement:     "unknown-element",
	CodeUnknownAttribute:   "unknown-attribute",
	CodeDuplicateName:      "duplicate-name",
	CodeNotFound:           "not-found",
	CodeOpenFailed:         "open-failed",
	CodeEmptyName:          "empty-name",
	CodeProfileCorrupted:   "profile-corrupted",
	CodeInvalidNode:        "invalid-node",
	CodeInvalidComment:     "invalid-comment",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

func (c Code) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Code) UnmarshalText(b []byte) error {
	b = bytes.TrimSpace(b)
	for i, name := range codeNames {
		if name == string(b) {
			*c = Code(i)
			return nil
		}
	}
	return errors.New("unknown value")
}

// Error represents a profile error.
//
// Errors compare equal under errors.Is when their codes match, so callers
// test against the sentinel values below:
//
//	if errors.Is(err, xmerr.ErrUnknownAttribute) { ... }
type Error struct {
	Code      Code   `json:"code"`
	Element   string `json:"element,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	// Name is the connection name or storage location, when relevant
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`

	cause error
}

// Sentinel values for use with errors.Is
var (
	ErrStorageFailure     = &Error{Code: CodeStorageFailure}
	ErrNoActiveConnection = &Error{Code: CodeNoActiveConnection}
	ErrUnknownElement     = &Error{Code: CodeUnknownElement}
	ErrUnknownAttribute   = &Error{Code: CodeUnknownAttribute}
	ErrDuplicateName      = &Error{Code: CodeDuplicateName}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrOpenFailed         = &Error{Code: CodeOpenFailed}
	ErrEmptyName          = &Error{Code: CodeEmptyName}
	ErrProfileCorrupted   = &Error{Code: CodeProfileCorrupted}
	ErrInvalidNode        = &Error{Code: CodeInvalidNode}
	ErrInvalidComment     = &Error{Code: CodeInvalidComment}
)

func (e *Error) Error() string {
	s := e.Code.String()
	if e.Element != "" {
		s += " element:" + e.Element
	}
	if e.Attribute != "" {
		s += " attribute:" + e.Attribute
	}
	if e.Name != "" {
		s += " name:" + e.Name
	}
	if e.Message != "" {
		s += " " + e.Message
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Cause implements the github.com/pkg/errors causer interface.
func (e *Error) Cause() error { return e.cause }

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// newError applies defaults, then the caller's opts.
func newError(e *Error, defaults []Option, opts []Option) *Error {
	for _, opt := range defaults {
		opt(e)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func NoActiveConnection(opts ...Option) *Error {
	return newError(&Error{Code: CodeNoActiveConnection}, nil, opts)
}

func UnknownElement(elementName string, opts ...Option) *Error {
	return newError(&Error{Code: CodeUnknownElement, Element: elementName}, nil, opts)
}

func UnknownAttribute(attributeName, elementName string, opts ...Option) *Error {
	return newError(&Error{
		Code:      CodeUnknownAttribute,
		Element:   elementName,
		Attribute: attributeName,
	}, nil, opts)
}

func DuplicateName(name string, opts ...Option) *Error {
	return newError(&Error{Code: CodeDuplicateName}, []Option{WithName(name)}, opts)
}

func NotFound(name string, opts ...Option) *Error {
	return newError(&Error{Code: CodeNotFound}, []Option{WithName(name)}, opts)
}

func OpenFailed(location string, cause error, opts ...Option) *Error {
	return newError(&Error{Code: CodeOpenFailed}, []Option{WithName(location), WithCause(cause)}, opts)
}

func EmptyName(opts ...Option) *Error {
	return newError(&Error{Code: CodeEmptyName}, nil, opts)
}

// StorageFailure wraps an error returned by the storage engine.
func StorageFailure(cause error, opts ...Option) *Error {
	return newError(&Error{Code: CodeStorageFailure}, []Option{WithCause(cause)}, opts)
}

func ProfileCorrupted(cause error, opts ...Option) *Error {
	return newError(&Error{Code: CodeProfileCorrupted}, []Option{WithCause(cause)}, opts)
}

func InvalidNode(id int, opts ...Option) *Error {
	return newError(&Error{Code: CodeInvalidNode}, []Option{WithMessage(fmt.Sprintf("node %d", id))}, opts)
}

// InvalidComment reports a comment for elementName that an XML comment
// cannot hold.
func InvalidComment(elementName string, cause error, opts ...Option) *Error {
	return newError(&Error{Code: CodeInvalidComment, Element: elementName}, []Option{WithCause(cause)}, opts)
}
