// Package growl defines the user-facing soft error every component raises
// when a request is rejected without mutating state or disconnecting the
// socket (spec §4.6, §7: "reply growl, no disconnect"). The Connection
// Supervisor turns a growl.Error into a `growl` frame addressed to the
// requesting socket only.
package growl

import "fmt"

// Error is a rejection the client should be told about but that never
// tears down the connection: "access denied", "already exists", "already a
// member", deleting ALL_ROOM, and so on.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// As reports whether err is a *Error and returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
