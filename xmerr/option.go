package xmerr

// Option is an Error option function
type Option func(*Error)

func WithMessage(msg string) Option { return func(e *Error) { e.Message = msg } }
func WithCause(err error) Option    { return func(e *Error) { e.cause = err } }
func WithName(name string) Option   { return func(e *Error) { e.Name = name } }
