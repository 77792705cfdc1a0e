package model

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// ErrorKind is the engine-level error taxonomy from the event dispatch
// table. Decode/UnknownTopic/StateViolation/NotFound/Conflict are returned
// to the caller on the matching res topic; Busy and Transient are handled
// below the engine and never reach a user.
type ErrorKind int

const (
	KindDecode ErrorKind = iota
	KindUnknownTopic
	KindStateViolation
	KindNotFound
	KindConflict
	KindBusy
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindUnknownTopic:
		return "unknown_topic"
	case KindStateViolation:
		return "state_violation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBusy:
		return "busy"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// EngineError is the typed error returned by event handlers. Code borrows
// grpc's status-code space purely as a stable, well-known integer range —
// this service has no gRPC server of its own, the codes package is just a
// conventional vocabulary clients can branch on without parsing Error().
type EngineError struct {
	kind ErrorKind
	code codes.Code
	msg  string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *EngineError) Kind() ErrorKind { return e.kind }
func (e *EngineError) Code() int       { return int(e.code) }

func newErr(kind ErrorKind, code codes.Code, format string, args ...interface{}) *EngineError {
	return &EngineError{kind: kind, code: code, msg: fmt.Sprintf(format, args...)}
}

func ErrDecode(format string, args ...interface{}) *EngineError {
	return newErr(KindDecode, codes.InvalidArgument, format, args...)
}

func ErrUnknownTopic(topic string) *EngineError {
	return newErr(KindUnknownTopic, codes.Unimplemented, "unrecognized topic %q", topic)
}

func ErrStateViolation(format string, args ...interface{}) *EngineError {
	return newErr(KindStateViolation, codes.FailedPrecondition, format, args...)
}

func ErrNotFound(format string, args ...interface{}) *EngineError {
	return newErr(KindNotFound, codes.NotFound, format, args...)
}

func ErrConflict(format string, args ...interface{}) *EngineError {
	return newErr(KindConflict, codes.AlreadyExists, format, args...)
}

func ErrBusy(format string, args ...interface{}) *EngineError {
	return newErr(KindBusy, codes.ResourceExhausted, format, args...)
}

func ErrTransient(format string, args ...interface{}) *EngineError {
	return newErr(KindTransient, codes.Unavailable, format, args...)
}
