package registry

import (
	"strings"

	"github.com/openappstack/installd/internal/bus"
	"github.com/openappstack/installd/internal/types"
)

// Bus names forming the compatibility contract of the daemon. Any client or
// reimplementation claiming interop must use these exact strings.
const (
	// ManagerPath is the parent address under which the manager and every
	// per-application object live.
	ManagerPath = "/installed"

	// ManagerInterface carries the Install method.
	ManagerInterface = "org.openappstack.Installed.Manager"

	// ManagerErrorName is the error name for manager-level failures.
	ManagerErrorName = "org.openappstack.Installed.Manager.Error"

	// ObjectManagerInterface carries GetManagedObjects and the
	// InterfacesAdded / InterfacesRemoved signals.
	ObjectManagerInterface = "org.freedesktop.DBus.ObjectManager"

	// ApplicationInterface is exported by every per-application object.
	ApplicationInterface = "org.openappstack.InstalledApplication"

	// ApplicationErrorName is the error name for per-object failures.
	ApplicationErrorName = "org.openappstack.InstalledApplication.Error"
)

// ObjectPath derives the bus address for an application identity: every
// byte outside [A-Za-z0-9] becomes '_'. The mapping is injective over the
// identities the store admits, because '.' is the only non-alphanumeric
// byte a valid identity may contain (manifest.ValidID); distinct valid
// identities therefore never share an address.
func ObjectPath(id string) string {
	var b strings.Builder
	b.Grow(len(ManagerPath) + 1 + len(id))
	b.WriteString(ManagerPath)
	b.WriteByte('/')
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Object is one exported application object. All state is fixed at
// construction; the manager alone controls its lifetime. The property
// snapshot taken here is what both InterfacesAdded and GetManagedObjects
// report, so a destroyed store record never needs to be re-read.
type Object struct {
	path       string
	appID      string
	interfaces []string
	properties map[string]interface{}
}

func newObject(app *types.ApplicationData) *Object {
	props := map[string]interface{}{
		"AppID":   app.ID,
		"Name":    app.Name,
		"Version": app.Version,
	}
	if app.Description != "" {
		props["Description"] = app.Description
	}
	for k, v := range app.Properties {
		if _, reserved := props[k]; !reserved {
			props[k] = v
		}
	}

	return &Object{
		path:       ObjectPath(app.ID),
		appID:      app.ID,
		interfaces: []string{ApplicationInterface},
		properties: props,
	}
}

// Path returns the object's bus address.
func (o *Object) Path() string { return o.path }

// AppID returns the identity of the application this object represents.
func (o *Object) AppID() string { return o.appID }

// Interfaces returns a copy of the interface names the object advertises.
func (o *Object) Interfaces() []string {
	out := make([]string, len(o.interfaces))
	copy(out, o.interfaces)
	return out
}

// Properties materializes the full interface-to-properties map used by both
// add signals and enumeration replies.
func (o *Object) Properties() types.PropertyMap {
	props := make(map[string]interface{}, len(o.properties))
	for k, v := range o.properties {
		props[k] = v
	}
	return types.PropertyMap{ApplicationInterface: props}
}

// exportUninstall publishes the object's Uninstall method. The handler is
// owned by the manager; binding it here rather than on the object keeps the
// object safe to destroy while one of its own calls is still in flight.
func (o *Object) exportUninstall(conn bus.Connection, h bus.Handler) error {
	return conn.ExportMethod(o.path, ApplicationInterface, "Uninstall", h)
}
