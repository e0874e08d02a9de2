// Package xmerr defines the errors returned by the profile store,
// the connection registry and the document model.
//
// Every error is an *Error carrying a Code and, where it applies, the
// element, attribute or connection name involved. Storage engine errors
// are wrapped as CodeStorageFailure and remain reachable via
// errors.Unwrap.
package xmerr
