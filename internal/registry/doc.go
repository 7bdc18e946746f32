// Package registry exports installed applications as remote objects.
//
// The Manager keeps one exported Object per installed application under the
// /installed parent path and holds the collection in lockstep with the
// application store: it observes store mutations synchronously, creates and
// destroys objects as applications come and go, and announces membership
// changes with InterfacesAdded / InterfacesRemoved signals.
//
// Ordering guarantees:
//   - a new object is registered on the bus before its add signal is sent,
//     so observers can query it the moment they learn of it
//   - a removal is signalled before the object is unregistered, so
//     observers always learn of it while the address is still meaningful
//   - the Install reply carries the path of an object that is already
//     registered and announced
//
// The Uninstall handler of an object survives the destruction of that very
// object: a successful store uninstall re-enters the manager through the
// observer callback and removes the object while the handler is still on
// the stack. The handler captures the application identity before the store
// call and touches nothing of the object afterwards.
package registry
