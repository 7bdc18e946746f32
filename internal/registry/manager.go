package registry

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/openappstack/installd/internal/bus"
	"github.com/openappstack/installd/internal/logging"
	"github.com/openappstack/installd/internal/monitoring"
	"github.com/openappstack/installd/internal/store"
	"github.com/openappstack/installd/internal/types"
)

// Manager mirrors the application store as exported bus objects: one object
// per installed application under ManagerPath, plus the manager-level
// Install and GetManagedObjects methods. It is the sole writer of the object
// collection. All of its methods, including the store observer callbacks,
// run on the bus dispatch goroutine, one call at a time.
type Manager struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics
	conn    bus.Connection
	store   store.Store

	objects []*Object
}

// NewManager wires the manager to the bus and the store, exports the
// manager-level methods, and creates one object per already-installed
// application. No signals are emitted for the initial population.
func NewManager(conn bus.Connection, st store.Store, logger *logging.Logger, metrics *monitoring.Metrics) *Manager {
	m := &Manager{
		logger:  logger,
		metrics: metrics,
		conn:    conn,
		store:   st,
	}

	st.AddObserver(m)

	m.export(ManagerPath, ObjectManagerInterface, "GetManagedObjects", m.handleGetManagedObjects)
	m.export(ManagerPath, ManagerInterface, "Install", m.handleInstall)

	for _, app := range st.GetAllInstalled() {
		m.createObject(app)
	}

	return m
}

// Close detaches the manager from the store and withdraws everything it
// exported. No removal signals are emitted; the whole surface is going away.
func (m *Manager) Close() {
	m.store.RemoveObserver(m)
	for _, obj := range m.objects {
		m.conn.UnregisterObject(obj.Path())
	}
	m.conn.UnregisterObject(ManagerPath)
	m.objects = nil
	if m.metrics != nil {
		m.metrics.ExportedObjects.Set(0)
	}
}

// OnApplicationInstalled implements store.Observer. Runs synchronously
// inside the store's Install, before it returns.
func (m *Manager) OnApplicationInstalled(id string) {
	app, ok := m.store.GetByID(id)
	if !ok {
		// The store told us id was just installed and then failed to
		// resolve it. The mirror can no longer be trusted.
		m.logger.Fatal("store reported install of unknown application", zap.String("id", id))
		return
	}

	obj := m.createObject(app)

	m.conn.Emit(ManagerPath, ObjectManagerInterface, "InterfacesAdded",
		obj.Path(), obj.Properties())
}

// OnApplicationUninstalled implements store.Observer. The removal signal is
// emitted before the object is unregistered, so observers always learn of
// the removal while the address is still meaningful. May run while an
// Uninstall call on the very object being destroyed is still on the stack;
// everything it needs is captured before the object leaves the collection.
func (m *Manager) OnApplicationUninstalled(id string) {
	idx := m.indexByID(id)
	if idx < 0 {
		m.logger.Warn("notified about uninstallation of unknown application",
			zap.String("id", id))
		return
	}

	obj := m.objects[idx]
	path := obj.Path()
	interfaces := obj.Interfaces()

	m.conn.Emit(ManagerPath, ObjectManagerInterface, "InterfacesRemoved",
		path, interfaces)

	m.conn.UnregisterObject(path)

	m.objects = append(m.objects[:idx], m.objects[idx+1:]...)
	if m.metrics != nil {
		m.metrics.ExportedObjects.Dec()
	}
}

func (m *Manager) handleGetManagedObjects(call *bus.Call, send bus.ResponseSender) {
	managed := make(map[string]types.PropertyMap, len(m.objects))
	for _, obj := range m.objects {
		managed[obj.Path()] = obj.Properties()
	}
	send.Reply(managed)
}

func (m *Manager) handleInstall(call *bus.Call, send bus.ResponseSender) {
	pkgPath, ok := call.StringArg(0)
	if !ok {
		send.Error(bus.NewError(bus.ErrNameInvalidArgs, "error parsing message"))
		return
	}

	if !filepath.IsAbs(pkgPath) {
		send.Error(bus.NewError(bus.ErrNameInvalidArgs, "path to install must be absolute"))
		return
	}

	id, err := m.store.Install(pkgPath)
	if err != nil {
		m.logger.Debug("install rejected by store",
			zap.String("path", pkgPath), zap.Error(err))
		if m.metrics != nil {
			m.metrics.InstallsTotal.WithLabelValues("failure").Inc()
		}
		send.Error(bus.NewError(ManagerErrorName,
			"error installing application with path: "+pkgPath))
		return
	}

	// The store's observer callback has already run, so the object must be
	// in the collection. Anything else means the mirror is corrupt and
	// continuing would serve a wrong view of installed applications.
	obj := m.objectByID(id)
	if obj == nil {
		m.logger.Fatal("installed application missing from collection",
			zap.String("id", id))
		return
	}

	if m.metrics != nil {
		m.metrics.InstallsTotal.WithLabelValues("success").Inc()
	}
	send.Reply(obj.Path())
}

// uninstallHandler builds the Uninstall handler for one object. The handler
// captures the identity before calling into the store: on success the
// observer callback destroys the object while this call is still on the
// stack, so nothing after the store call may touch obj.
func (m *Manager) uninstallHandler(obj *Object) bus.Handler {
	return func(call *bus.Call, send bus.ResponseSender) {
		id := obj.AppID()

		if err := m.store.Uninstall(id); err != nil {
			m.logger.Debug("uninstall rejected by store",
				zap.String("id", id), zap.Error(err))
			if m.metrics != nil {
				m.metrics.UninstallsTotal.WithLabelValues("failure").Inc()
			}
			send.Error(bus.NewError(ApplicationErrorName,
				"error trying to uninstall application with id "+id))
			return
		}

		// Only captured locals from here on.
		if m.metrics != nil {
			m.metrics.UninstallsTotal.WithLabelValues("success").Inc()
		}
		send.Reply()
	}
}

func (m *Manager) createObject(app *types.ApplicationData) *Object {
	obj := newObject(app)

	if err := obj.exportUninstall(m.conn, m.uninstallHandler(obj)); err != nil {
		m.logger.Warn("error exporting Uninstall method",
			zap.String("path", obj.Path()), zap.Error(err))
	}

	m.objects = append(m.objects, obj)
	if m.metrics != nil {
		m.metrics.ExportedObjects.Inc()
	}
	return obj
}

func (m *Manager) export(path, iface, member string, h bus.Handler) {
	if err := m.conn.ExportMethod(path, iface, member, h); err != nil {
		m.logger.Warn("error exporting method",
			zap.String("path", path),
			zap.String("interface", iface),
			zap.String("member", member),
			zap.Error(err))
	}
}

func (m *Manager) indexByID(id string) int {
	for i, obj := range m.objects {
		if obj.AppID() == id {
			return i
		}
	}
	return -1
}

func (m *Manager) objectByID(id string) *Object {
	if idx := m.indexByID(id); idx >= 0 {
		return m.objects[idx]
	}
	return nil
}
