package store

import "github.com/openappstack/installd/internal/types"

// Observer receives store membership changes. Callbacks run synchronously on
// the goroutine performing the mutation, after the store's own state has
// been updated and before Install/Uninstall returns. The registry depends on
// that ordering: when its Install method return fires, the observer callback
// for the new application has already run.
type Observer interface {
	OnApplicationInstalled(id string)
	OnApplicationUninstalled(id string)
}

// Store is the application database the registry mirrors. It is the single
// source of truth for which applications are installed.
type Store interface {
	// GetByID returns the application with the given identity, or false.
	GetByID(id string) (*types.ApplicationData, bool)

	// GetAllInstalled returns every installed application.
	GetAllInstalled() []*types.ApplicationData

	// Install validates the package file at pkgPath and records the
	// application it describes, returning its identity.
	Install(pkgPath string) (string, error)

	// Uninstall removes the application with the given identity.
	Uninstall(id string) error

	AddObserver(o Observer)
	RemoveObserver(o Observer)
}
