// Package store is the installed-application database.
//
// FileStore keeps one JSON record per application under <root>/apps and
// notifies registered observers of installs and uninstalls synchronously,
// after its own state is updated and before the mutating call returns.
package store
