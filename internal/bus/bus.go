package bus

import "fmt"

// Well-known error names used on the wire when the transport itself rejects
// a call, before any handler runs.
const (
	ErrNameUnknownObject = "org.openappstack.Error.UnknownObject"
	ErrNameUnknownMethod = "org.openappstack.Error.UnknownMethod"
	ErrNameInvalidArgs   = "org.openappstack.Error.InvalidArgument"
)

// Error is a named protocol-level failure sent back to the caller instead of
// a method return.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// NewError creates a protocol error with the given name and message.
func NewError(name, message string) *Error {
	return &Error{Name: name, Message: message}
}

// Call is one inbound method invocation.
type Call struct {
	Serial    string
	Path      string
	Interface string
	Member    string
	Args      []interface{}
}

// StringArg returns argument i as a string. The second return is false when
// the argument is missing or not a string.
func (c *Call) StringArg(i int) (string, bool) {
	if i >= len(c.Args) {
		return "", false
	}
	s, ok := c.Args[i].(string)
	return s, ok
}

// ResponseSender delivers the reply for one Call. Exactly one of Reply or
// Error must be invoked, exactly once; later invocations are dropped.
type ResponseSender interface {
	Reply(args ...interface{})
	Error(err *Error)
}

// Handler services one exported method. The sender must be used before the
// handler returns or not at all (in which case the call times out on the
// caller's side); handlers here always respond.
type Handler func(call *Call, send ResponseSender)

// Connection is the transport surface the registry depends on: method
// export, object unregistration, and unsolicited signal emission. The
// concrete implementation is Hub; tests substitute recorders.
type Connection interface {
	// ExportMethod publishes a method under path. Exporting the same
	// path/interface/member twice is an error; the caller decides whether
	// that is fatal.
	ExportMethod(path, iface, member string, h Handler) error

	// UnregisterObject removes every method exported under path. Calls
	// arriving afterwards fail with ErrNameUnknownObject.
	UnregisterObject(path string)

	// Emit broadcasts a signal from path to every connected observer.
	Emit(path, iface, member string, args ...interface{})
}
