package router

import "net/http"

// ErrorKind tags the closed set of routing failures.
type ErrorKind int

const (
	// KindSaveDb is a storage failure while persisting a message that could
	// not be delivered directly. The sender is expected to retry later.
	KindSaveDb ErrorKind = iota
	// KindUserWasDeleted means the user record vanished between the initial
	// read and the post-store re-read. The destination no longer exists.
	KindUserWasDeleted
)

// Error is the routing failure surfaced by RouteNotification. It maps onto
// an HTTP status and a stable errno for the response body.
type Error struct {
	Kind  ErrorKind
	cause error
}

func newSaveDbError(cause error) *Error {
	return &Error{Kind: KindSaveDb, cause: cause}
}

func newUserWasDeletedError() *Error {
	return &Error{Kind: KindUserWasDeleted}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindSaveDb:
		if e.cause != nil {
			return "database error while saving notification: " + e.cause.Error()
		}
		return "database error while saving notification"
	case KindUserWasDeleted:
		return "user was deleted during routing"
	default:
		return "unknown routing error"
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Status returns the HTTP status the failure maps to.
func (e *Error) Status() int {
	switch e.Kind {
	case KindSaveDb:
		return http.StatusServiceUnavailable
	case KindUserWasDeleted:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// ErrNo returns the stable error number reported to clients.
func (e *Error) ErrNo() int {
	switch e.Kind {
	case KindSaveDb:
		return 201
	case KindUserWasDeleted:
		return 105
	default:
		return 999
	}
}
