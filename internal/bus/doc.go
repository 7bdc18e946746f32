// Package bus provides the remote-object transport for installd.
//
// Observers connect over WebSocket and exchange JSON frames: method calls
// with exactly-once replies, and unsolicited signals broadcast to every
// connection.
//
// Frame Types (Client → Server):
//   - method_call: invoke an exported method by path/interface/member
//   - ping: keep-alive ping
//
// Frame Types (Server → Client):
//   - method_return: successful reply, correlated by serial
//   - error: named failure, correlated by serial
//   - signal: unsolicited broadcast from an object path
//   - pong: keep-alive reply
//
// All method handlers run on a single dispatch goroutine, one call at a
// time. Components exporting methods on the hub therefore see a strictly
// serialized call stream and need no internal locking of their own. A
// signal emitted from inside a handler is written to every connection
// before Emit returns, so on any one connection it precedes the handler's
// reply.
//
// Example Usage:
//
//	hub := bus.NewHub(logger, metrics)
//	hub.ExportMethod("/installed", iface, "Install", handler)
//	router.GET("/bus", hub.HandleConnection)
package bus
